package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncron/internal/cronjob"
	"dyncron/internal/platform/sqlite"
	"dyncron/internal/shared"
)

// schema mirrors migrations/sqlite/0001_create_cron_jobs.up.sql.
const schema = `CREATE TABLE cron_jobs (
	name        TEXT PRIMARY KEY,
	spec        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	handler     TEXT NOT NULL DEFAULT '',
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMP NOT NULL
)`

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	tdb := sqlite.NewTestDBInMemory(t)
	tdb.MustSeedData(t, schema)
	return New(tdb.TxRunner)
}

func sampleDef(name string, active bool) cronjob.Definition {
	return cronjob.Definition{
		Name:        name,
		Spec:        "0 */5 * * * *",
		Description: "desc " + name,
		Handler:     "jobs." + name,
		Active:      active,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := sampleDef("backup-task", true)
	require.NoError(t, repo.Create(ctx, want))

	got, err := repo.Get(ctx, "backup-task")
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Spec, got.Spec)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.Handler, got.Handler)
	assert.Equal(t, want.Active, got.Active)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestCreate_DuplicateConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleDef("a", true)))
	err := repo.Create(ctx, sampleDef("a", true))
	require.Error(t, err)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
}

func TestCreate_FillsCreatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	def := sampleDef("a", true)
	def.CreatedAt = time.Time{}
	require.NoError(t, repo.Create(ctx, def))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestListActive_FiltersAndOrders(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleDef("charlie", true)))
	require.NoError(t, repo.Create(ctx, sampleDef("alpha", true)))
	require.NoError(t, repo.Create(ctx, sampleDef("bravo", false)))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alpha", active[0].Name)
	assert.Equal(t, "charlie", active[1].Name)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

func TestListActive_Empty(t *testing.T) {
	repo := newTestRepo(t)

	defs, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleDef("a", true)))

	updated := sampleDef("a", false)
	updated.Spec = "0 0 2 * * *"
	require.NoError(t, repo.Update(ctx, updated))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "0 0 2 * * *", got.Spec)
	assert.False(t, got.Active)
}

func TestUpdate_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Update(context.Background(), sampleDef("missing", true))
	require.Error(t, err)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleDef("a", true)))
	require.NoError(t, repo.Delete(ctx, "a"))

	_, err := repo.Get(ctx, "a")
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	err = repo.Delete(ctx, "a")
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestCount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleDef("a", true)))
	require.NoError(t, repo.Create(ctx, sampleDef("b", true)))
	require.NoError(t, repo.Create(ctx, sampleDef("c", false)))

	total, active, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.EqualValues(t, 2, active)
}
