package archive

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/infrastructure/pool"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/repositories"
)

func newTestArchive(t *testing.T) repositories.ArchiveRepository {
	t.Helper()

	p, err := pool.New(pool.Config{Driver: pool.DriverSQLite, DSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)

	clock := func() time.Time { return time.Unix(1700000000, 0) }
	repo, err := New(context.Background(), p, zerolog.Nop(), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testPlan(id string, createdAt int64) models.ExecutionPlan {
	return models.ExecutionPlan{
		ID:            id,
		CreatedAt:     createdAt,
		FormattedTime: "12:00:00",
		Plan: models.ExecutionPlanNode{
			Name:    "ProjectionExec",
			Metrics: map[string]string{"output_rows": "10"},
			Children: []models.ExecutionPlanNode{
				{Name: "ParquetExec"},
			},
		},
		Stats: &models.ExecutionStats{
			PlanID:          id,
			DisplayName:     "q-" + id,
			ExecutionTimeMs: 42,
		},
	}
}

func TestArchive_SaveAndGet(t *testing.T) {
	repo := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "http://a:53703", []models.ExecutionPlan{testPlan("p1", 100)}))

	got, err := repo.Get(ctx, "http://a:53703", "p1")
	require.NoError(t, err)
	assert.Equal(t, "http://a:53703", got.Host)
	assert.Equal(t, 2, got.NodeCount)
	assert.Equal(t, int64(1700000000), got.ArchivedAt.Unix())
	assert.Equal(t, "ProjectionExec", got.Plan.Plan.Name)
	assert.Equal(t, "ParquetExec", got.Plan.Plan.Children[0].Name)
	require.NotNil(t, got.Plan.Stats)
	assert.Equal(t, uint64(42), got.Plan.Stats.ExecutionTimeMs)

	_, err = repo.Get(ctx, "http://other:53703", "p1")
	assert.True(t, errors.IsNotFound(err))
}

func TestArchive_SaveReplaces(t *testing.T) {
	repo := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "h", []models.ExecutionPlan{testPlan("p1", 100)}))
	updated := testPlan("p1", 100)
	updated.Stats.ExecutionTimeMs = 7
	require.NoError(t, repo.Save(ctx, "h", []models.ExecutionPlan{updated}))

	plans, err := repo.List(ctx, "h", 10)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, uint64(7), plans[0].Plan.Stats.ExecutionTimeMs)
}

func TestArchive_SaveEmpty(t *testing.T) {
	repo := newTestArchive(t)
	assert.NoError(t, repo.Save(context.Background(), "h", nil))
}

func TestArchive_List(t *testing.T) {
	repo := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "a", []models.ExecutionPlan{testPlan("a1", 100), testPlan("a2", 300)}))
	require.NoError(t, repo.Save(ctx, "b", []models.ExecutionPlan{testPlan("b1", 200)}))

	tests := []struct {
		name  string
		host  string
		limit int
		ids   []string
	}{
		{name: "all hosts newest first", host: "", limit: 10, ids: []string{"a2", "b1", "a1"}},
		{name: "single host", host: "a", limit: 10, ids: []string{"a2", "a1"}},
		{name: "limit", host: "", limit: 1, ids: []string{"a2"}},
		{name: "unknown host", host: "c", limit: 10, ids: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans, err := repo.List(ctx, tt.host, tt.limit)
			require.NoError(t, err)

			var ids []string
			for _, p := range plans {
				ids = append(ids, p.Plan.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestArchive_Prune(t *testing.T) {
	repo := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "h", []models.ExecutionPlan{
		testPlan("p1", 100),
		testPlan("p2", 200),
		testPlan("p3", 300),
		testPlan("p4", 400),
	}))

	deleted, err := repo.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	plans, err := repo.List(ctx, "h", 10)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "p4", plans[0].Plan.ID)
	assert.Equal(t, "p3", plans[1].Plan.ID)

	deleted, err = repo.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.Prune(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestArchive_ClosedPool(t *testing.T) {
	p, err := pool.New(pool.Config{Driver: pool.DriverSQLite, DSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	repo, err := New(context.Background(), p, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = repo.List(context.Background(), "", 10)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}
