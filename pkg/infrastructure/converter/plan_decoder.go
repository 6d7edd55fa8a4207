// Package converter decodes the execution plan payload served by the cache
// server into plan trees.
package converter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/models"
)

// timeLayout is the wall clock format shown next to every plan.
const timeLayout = "15:04:05"

// PlanDecoder turns (key, record) pairs into execution plans.
type PlanDecoder interface {
	// Decode decodes every pair it can. It fails only when the batch is
	// non-empty and no plan survived.
	Decode(records []models.PlanRecord) (*DecodeResult, error)
}

// DecodeResult is the best-effort outcome of one decode.
type DecodeResult struct {
	Plans  []models.ExecutionPlan
	Errors []DecodeError
}

// DecodeError records why one pair was skipped.
type DecodeError struct {
	Key string
	Err error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("plan %s: %v", e.Key, e.Err)
}

// Option configures a decoder.
type Option func(*planDecoder)

// WithLocation sets the time zone used for formatted timestamps.
func WithLocation(loc *time.Location) Option {
	return func(d *planDecoder) {
		if loc != nil {
			d.loc = loc
		}
	}
}

type planDecoder struct {
	loc    *time.Location
	logger zerolog.Logger
}

// New creates a plan decoder that renders timestamps in the local zone.
func New(logger zerolog.Logger, opts ...Option) PlanDecoder {
	d := &planDecoder{
		loc:    time.Local,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// wireRecord is the JSON object stored as the second element of each pair.
type wireRecord struct {
	Plan      *string `json:"plan"`
	ID        *string `json:"id"`
	CreatedAt *uint64 `json:"created_at"`
	Stats     *string `json:"stats"`
}

// wireNode mirrors ExecutionPlanNode with children left undecoded, since the
// server may send each child either as an object or as a JSON string.
type wireNode struct {
	Name       string               `json:"name"`
	Schema     []models.SchemaField `json:"schema"`
	Statistics *models.Statistics   `json:"statistics"`
	Metrics    map[string]string    `json:"metrics"`
	Children   []json.RawMessage    `json:"children"`
}

// ParseBatch splits a raw /execution_plans body into its (key, record) pairs.
// Only a body that is not a list fails; a malformed pair becomes a record
// with Invalid set, keyed by its position when it has no usable key.
func ParseBatch(body []byte) ([]models.PlanRecord, error) {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, errors.Wrap(err, errors.CodeDecodeFailed, "execution plan batch is not a list of pairs")
	}

	records := make([]models.PlanRecord, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			records = append(records, models.PlanRecord{
				Key:     "#" + strconv.Itoa(i),
				Invalid: "entry is not a (key, record) pair",
			})
			continue
		}
		var key, record string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			records = append(records, models.PlanRecord{
				Key:     "#" + strconv.Itoa(i),
				Invalid: "key is not a string",
			})
			continue
		}
		if err := json.Unmarshal(pair[1], &record); err != nil {
			// Some servers embed the record object directly.
			record = string(pair[1])
		}
		records = append(records, models.PlanRecord{Key: key, Record: record})
	}
	return records, nil
}

func (d *planDecoder) Decode(records []models.PlanRecord) (*DecodeResult, error) {
	result := &DecodeResult{
		Plans: make([]models.ExecutionPlan, 0, len(records)),
	}

	for _, rec := range records {
		plan, err := d.decodeRecord(rec)
		if err != nil {
			d.logger.Warn().Err(err).Str("key", rec.Key).Msg("Skipping undecodable execution plan")
			result.Errors = append(result.Errors, DecodeError{Key: rec.Key, Err: err})
			continue
		}
		result.Plans = append(result.Plans, plan)
	}

	sort.SliceStable(result.Plans, func(i, j int) bool {
		return result.Plans[i].CreatedAt > result.Plans[j].CreatedAt
	})

	if len(records) > 0 && len(result.Plans) == 0 {
		return result, errors.New(errors.CodeBatchUndecodable,
			fmt.Sprintf("none of %d execution plans could be decoded", len(records)))
	}

	d.logger.Debug().
		Int("records", len(records)).
		Int("plans", len(result.Plans)).
		Int("errors", len(result.Errors)).
		Msg("Decoded execution plans")

	return result, nil
}

func (d *planDecoder) decodeRecord(rec models.PlanRecord) (models.ExecutionPlan, error) {
	if rec.Invalid != "" {
		return models.ExecutionPlan{}, errors.New(errors.CodeDecodeFailed, rec.Invalid)
	}

	var wire wireRecord
	if err := json.Unmarshal([]byte(rec.Record), &wire); err != nil {
		return models.ExecutionPlan{}, errors.Wrap(err, errors.CodeDecodeFailed, "invalid plan record")
	}
	if wire.Plan == nil {
		return models.ExecutionPlan{}, errors.New(errors.CodeDecodeFailed, "plan record has no plan")
	}
	if wire.ID == nil {
		return models.ExecutionPlan{}, errors.New(errors.CodeDecodeFailed, "plan record has no id")
	}
	if wire.CreatedAt == nil {
		return models.ExecutionPlan{}, errors.New(errors.CodeDecodeFailed, "plan record has no created_at")
	}
	if *wire.CreatedAt > math.MaxInt64 {
		return models.ExecutionPlan{}, errors.New(errors.CodeDecodeFailed, "plan record created_at is out of range").
			WithDetail("created_at", *wire.CreatedAt)
	}

	var root wireNode
	if err := json.Unmarshal([]byte(*wire.Plan), &root); err != nil {
		return models.ExecutionPlan{}, errors.Wrap(err, errors.CodeDecodeFailed, "invalid plan tree")
	}

	createdAt := int64(*wire.CreatedAt)
	plan := models.ExecutionPlan{
		ID:            rec.Key,
		Plan:          d.buildNode(rec.Key, "0", &root),
		CreatedAt:     createdAt,
		FormattedTime: time.Unix(createdAt, 0).In(d.loc).Format(timeLayout),
	}

	if wire.Stats != nil {
		var stats models.ExecutionStats
		if err := json.Unmarshal([]byte(*wire.Stats), &stats); err != nil {
			d.logger.Warn().Err(err).Str("key", rec.Key).Msg("Ignoring undecodable execution stats")
		} else {
			plan.Stats = &stats
		}
	}

	return plan, nil
}

// buildNode converts a wire node and its children. Children that cannot be
// decoded are dropped; their parent survives.
func (d *planDecoder) buildNode(key, path string, wire *wireNode) models.ExecutionPlanNode {
	node := models.ExecutionPlanNode{
		Name:       wire.Name,
		Schema:     wire.Schema,
		Statistics: wire.Statistics,
		Metrics:    wire.Metrics,
	}
	if node.Schema == nil {
		node.Schema = []models.SchemaField{}
	}
	if node.Metrics == nil {
		node.Metrics = map[string]string{}
	}

	node.Children = make([]models.ExecutionPlanNode, 0, len(wire.Children))
	for i, raw := range wire.Children {
		childPath := path + "." + strconv.Itoa(i)
		child, err := decodeChild(raw)
		if err != nil {
			d.logger.Warn().
				Err(err).
				Str("key", key).
				Str("path", childPath).
				Msg("Dropping undecodable plan node")
			continue
		}
		node.Children = append(node.Children, d.buildNode(key, path+"."+strconv.Itoa(len(node.Children)), child))
	}

	return node
}

// decodeChild accepts a child as an object, or as a string holding the
// object's JSON.
func decodeChild(raw json.RawMessage) (*wireNode, error) {
	trimmed := bytes.TrimSpace(raw)

	var node wireNode
	objErr := json.Unmarshal(trimmed, &node)
	if objErr == nil && len(trimmed) > 0 && trimmed[0] == '{' {
		return &node, nil
	}

	var encoded string
	if err := json.Unmarshal(trimmed, &encoded); err != nil {
		if objErr == nil {
			objErr = fmt.Errorf("child is %s, not an object", kindOf(trimmed))
		}
		return nil, objErr
	}

	node = wireNode{}
	if err := json.Unmarshal([]byte(encoded), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func kindOf(raw []byte) string {
	if len(raw) == 0 {
		return "empty"
	}
	switch raw[0] {
	case '[':
		return "an array"
	case 'n':
		return "null"
	case 't', 'f':
		return "a boolean"
	default:
		return "a number"
	}
}
