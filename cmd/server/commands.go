package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/cachewatch/cmd/server/config"
	"github.com/TFMV/cachewatch/cmd/server/server"
	"github.com/TFMV/cachewatch/pkg/format"
	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/render/text"
	"github.com/TFMV/cachewatch/pkg/services"
	"github.com/TFMV/cachewatch/pkg/view"
)

// errReported marks failures that were already printed by the notifier.
var errReported = stderrors.New("error already reported")

// cliNotifier prints service notifications to stderr.
type cliNotifier struct {
	w       io.Writer
	success *color.Color
	failure *color.Color
	info    *color.Color

	mu     sync.Mutex
	errors int
}

func newCLINotifier(w io.Writer, enableColor bool) *cliNotifier {
	n := &cliNotifier{
		w:       w,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{n.success, n.failure, n.info} {
		if enableColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return n
}

func (n *cliNotifier) Success(message string) {
	n.print(n.success, "ok", message)
}

func (n *cliNotifier) Error(message string) {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
	n.print(n.failure, "error", message)
}

func (n *cliNotifier) Info(message string) {
	n.print(n.info, "info", message)
}

func (n *cliNotifier) print(c *color.Color, label, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, "%s %s\n", c.Sprintf("[%s]", label), message)
}

// reported reports whether an error notification was printed.
func (n *cliNotifier) reported() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errors > 0
}

// client is the state shared by the one-shot commands.
type client struct {
	cfg      *config.Config
	svc      services.DashboardService
	notifier *cliNotifier
	color    bool
}

func newClient(cmd *cobra.Command) (*client, error) {
	v := viper.GetViper()
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Terminal output stays readable unless a level was asked for.
	level := cfg.LogLevel
	if !v.IsSet("log-level") && !v.IsSet("log_level") {
		level = "warn"
	}
	logger := setupLogging(level, true)

	enableColor := !v.GetBool("no-color") && !color.NoColor
	notifier := newCLINotifier(cmd.ErrOrStderr(), enableColor)

	svc, err := server.NewService(cmd.Context(), cfg, logger, metrics.NewNoOpCollector(), services.WithNotifier(notifier))
	if err != nil {
		return nil, err
	}
	return &client{cfg: cfg, svc: svc, notifier: notifier, color: enableColor}, nil
}

// wrap turns an error the notifier already printed into errReported.
func (c *client) wrap(err error) error {
	if err == nil {
		return nil
	}
	if c.notifier.reported() {
		return errReported
	}
	return err
}

func (c *client) host() string {
	return c.cfg.ServerAddress
}

func (c *client) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, c.cfg.RequestTimeout)
}

// withClient builds a client, runs fn and releases the service.
func withClient(fn func(cmd *cobra.Command, args []string, c *client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.svc.Close()
		return fn(cmd, args, c)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetRowLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}

func addClientCommands(root *cobra.Command) {
	plansCmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect execution plans recorded by the cache server",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List execution plans, newest first",
		Args:  cobra.NoArgs,
		RunE:  withClient(runPlansList),
	}

	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print an execution plan tree",
		Long: `Print an execution plan tree. Without an id the newest plan is shown.

Example:
  cachewatch plans show --statistics
  cachewatch plans show 3f2a... --depth 3 --flamegraph plan.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: withClient(runPlansShow),
	}
	showCmd.Flags().Int("depth", 0, "stop descending below this depth (0 prints the whole tree)")
	showCmd.Flags().Bool("statistics", false, "expand the statistics of every node")
	showCmd.Flags().Bool("no-schema", false, "collapse the schema of every node")
	showCmd.Flags().String("flamegraph", "", "write the plan's flamegraph SVG to this file")

	plansCmd.AddCommand(listCmd, showCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show cache usage and host resources",
		Args:  cobra.NoArgs,
		RunE:  withClient(runInfo),
	}

	names := make([]string, 0, len(models.Actions))
	for _, a := range models.Actions {
		names = append(names, actionFlagName(a))
	}
	actionCmd := &cobra.Command{
		Use:       fmt.Sprintf("action <%s>", strings.Join(names, "|")),
		Short:     "Run a control action on the cache server",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE:      withClient(runAction),
	}
	actionCmd.Flags().String("path", "", "server-side directory for stop-trace and cache-stats")

	historyCmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List archived execution plans, or print one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withClient(runHistory),
	}
	historyCmd.Flags().Int("limit", 20, "maximum number of plans to list")
	historyCmd.Flags().Bool("all-servers", false, "list plans of every archived server")
	historyCmd.Flags().String("archive-driver", "duckdb", "archive database driver (duckdb, sqlite)")
	historyCmd.Flags().String("archive-dsn", "cachewatch.duckdb", "archive database path")

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Check the server's Arrow Flight endpoint",
		Args:  cobra.NoArgs,
		RunE:  withClient(runProbe),
	}
	probeCmd.Flags().String("flight-address", "localhost:15214", "Arrow Flight endpoint address")

	// history and probe only make sense with their backend switched on.
	historyCmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		viper.Set("archive-enabled", true)
		return viper.BindPFlags(cmd.Flags())
	}
	probeCmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		viper.Set("flight-enabled", true)
		return viper.BindPFlags(cmd.Flags())
	}

	root.AddCommand(plansCmd, infoCmd, actionCmd, historyCmd, probeCmd)
}

func actionFlagName(a models.Action) string {
	return strings.ReplaceAll(string(a), "_", "-")
}

func runPlansList(cmd *cobra.Command, _ []string, c *client) error {
	ctx, cancel := c.context(cmd.Context())
	defer cancel()

	if err := c.svc.RefreshPlans(ctx, c.host()); err != nil {
		return c.wrap(err)
	}
	snap, err := c.svc.Snapshot(c.host())
	if err != nil {
		return err
	}

	now := time.Now()
	table := newTable(cmd.OutOrStdout(), "ID", "Name", "Created", "Age", "Execution", "Network")
	for i := range snap.Plans {
		plan := &snap.Plans[i]
		name, execution, network := "", "", ""
		if plan.Stats != nil {
			name = plan.Stats.DisplayName
			execution = format.Millis(plan.Stats.ExecutionTimeMs)
			network = format.Bytes(plan.Stats.NetworkTrafficBytes)
		}
		table.Append([]string{
			plan.ID,
			name,
			plan.FormattedTime,
			format.Age(plan.Created(time.Local), now),
			execution,
			network,
		})
	}
	table.Render()
	return nil
}

func runPlansShow(cmd *cobra.Command, args []string, c *client) error {
	ctx, cancel := c.context(cmd.Context())
	defer cancel()

	if err := c.svc.RefreshPlans(ctx, c.host()); err != nil {
		return c.wrap(err)
	}
	if len(args) == 1 {
		if err := c.svc.SelectPlan(c.host(), args[0]); err != nil {
			return err
		}
	}

	snap, err := c.svc.Snapshot(c.host())
	if err != nil {
		return err
	}
	if snap.Current == nil {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No execution plans recorded yet")
		return nil
	}

	flags := cmd.Flags()
	pv := snap.Current
	statistics, _ := flags.GetBool("statistics")
	noSchema, _ := flags.GetBool("no-schema")
	if statistics || noSchema {
		for i := range pv.Tree.Nodes {
			node := &pv.Tree.Nodes[i]
			if statistics && node.Plan.Statistics != nil && !pv.Toggles.Expanded(view.PanelStatistics, node.Path) {
				pv.Toggles.Toggle(view.PanelStatistics, node.Path)
			}
			if noSchema && pv.Toggles.Expanded(view.PanelSchema, node.Path) {
				pv.Toggles.Toggle(view.PanelSchema, node.Path)
			}
		}
	}

	depth, _ := flags.GetInt("depth")
	if err := text.Render(cmd.OutOrStdout(), pv, text.Options{
		EnableColor: c.color,
		MaxDepth:    depth,
		Header:      true,
	}); err != nil {
		return err
	}

	if path, _ := flags.GetString("flamegraph"); path != "" {
		svg, err := c.svc.Flamegraph(c.host(), pv.Plan.ID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(svg), 0o644); err != nil {
			return fmt.Errorf("failed to write flamegraph: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Flamegraph written to %s\n", path)
	}
	return nil
}

func runInfo(cmd *cobra.Command, _ []string, c *client) error {
	ctx, cancel := c.context(cmd.Context())
	defer cancel()

	// Panels that fail are reported by the notifier and left out.
	cacheErr := c.svc.RefreshCacheInfo(ctx, c.host())
	systemErr := c.svc.RefreshSystemInfo(ctx, c.host())

	snap, err := c.svc.Snapshot(c.host())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sys := snap.System; sys != nil {
		_, _ = fmt.Fprintln(out, "System")
		table := newTable(out, "Property", "Value")
		table.AppendBulk([][]string{
			{"Host", sys.HostName},
			{"OS", fmt.Sprintf("%s %s", sys.Name, sys.OS)},
			{"Kernel", sys.Kernel},
			{"CPU cores", format.Count(sys.CPUCores)},
			{"Memory", fmt.Sprintf("%s / %s (%s%%)", format.Bytes(sys.UsedMemoryBytes), format.Bytes(sys.TotalMemoryBytes), format.Percent(sys.UsedMemoryBytes, sys.TotalMemoryBytes))},
			{"Server resident memory", format.Bytes(sys.ServerResidentMemoryBytes)},
			{"Server virtual memory", format.Bytes(sys.ServerVirtualMemoryBytes)},
		})
		table.Render()
		_, _ = fmt.Fprintln(out)
	}

	if info := snap.CacheInfo; info != nil {
		_, _ = fmt.Fprintln(out, "Cache")
		table := newTable(out, "Property", "Value")
		table.AppendBulk([][]string{
			{"Batch size", format.Count(info.BatchSize)},
			{"Memory usage", fmt.Sprintf("%s / %s (%s%%)", format.Bytes(info.MemoryUsageBytes), format.Bytes(info.MaxCacheBytes), format.Percent(info.MemoryUsageBytes, info.MaxCacheBytes))},
			{"Disk usage", format.Bytes(info.DiskUsageBytes)},
		})
		table.Render()
		_, _ = fmt.Fprintln(out)
	}

	if usage := snap.Parquet; usage != nil {
		_, _ = fmt.Fprintln(out, "Parquet cache")
		table := newTable(out, "Property", "Value")
		table.AppendBulk([][]string{
			{"Directory", usage.Directory},
			{"Files", format.Count(usage.FileCount)},
			{"Total size", format.Bytes(usage.TotalSizeBytes)},
		})
		table.Render()
	}

	if cacheErr != nil && systemErr != nil {
		return c.wrap(cacheErr)
	}
	return nil
}

func runAction(cmd *cobra.Command, args []string, c *client) error {
	action := models.Action(strings.ReplaceAll(args[0], "-", "_"))
	if !action.Valid() {
		return fmt.Errorf("unknown action %q", args[0])
	}
	path, _ := cmd.Flags().GetString("path")

	ctx, cancel := c.context(cmd.Context())
	defer cancel()

	// The notifier prints the server's message.
	_, err := c.svc.RunAction(ctx, c.host(), action, path)
	return c.wrap(err)
}

func runHistory(cmd *cobra.Command, args []string, c *client) error {
	ctx, cancel := c.context(cmd.Context())
	defer cancel()

	limit, _ := cmd.Flags().GetInt("limit")
	host := c.host()
	if all, _ := cmd.Flags().GetBool("all-servers"); all {
		host = ""
	}

	if len(args) == 1 {
		archived, err := c.svc.ArchivedPlan(ctx, host, args[0])
		if err != nil {
			return err
		}
		return text.Render(cmd.OutOrStdout(), &view.PlanView{
			Plan:    &archived.Plan,
			Tree:    view.Flatten(&archived.Plan.Plan),
			Toggles: view.NewToggles(),
		}, text.Options{EnableColor: c.color, Header: true})
	}

	plans, err := c.svc.History(ctx, host, limit)
	if err != nil {
		return err
	}

	table := newTable(cmd.OutOrStdout(), "Server", "ID", "Name", "Created", "Nodes", "Archived")
	now := time.Now()
	for i := range plans {
		p := &plans[i]
		table.Append([]string{
			p.Host,
			p.Plan.ShortID(),
			p.Plan.DisplayName(),
			p.Plan.FormattedTime,
			format.Count(uint64(p.NodeCount)),
			format.Age(p.ArchivedAt, now),
		})
	}
	table.Render()
	return nil
}

func runProbe(cmd *cobra.Command, _ []string, c *client) error {
	ctx, cancel := c.context(cmd.Context())
	defer cancel()

	result, err := c.svc.ProbeFlight(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	status := color.New(color.FgGreen)
	label := "reachable"
	if !result.Reachable {
		status = color.New(color.FgRed)
		label = "unreachable"
	}
	if !c.color {
		status.DisableColor()
	}

	_, _ = fmt.Fprintf(out, "%s %s (%s)\n", result.Address, status.Sprint(label), result.Latency.Round(time.Millisecond))
	if result.Error != "" {
		_, _ = fmt.Fprintf(out, "  %s\n", result.Error)
	}
	if len(result.Actions) > 0 {
		_, _ = fmt.Fprintf(out, "  actions: %s\n", strings.Join(result.Actions, ", "))
	}
	if !result.Reachable {
		return errReported
	}
	return nil
}
