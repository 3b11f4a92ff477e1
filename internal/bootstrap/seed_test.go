package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncron/internal/cronjob"
	"dyncron/internal/shared"
)

type memStore struct {
	defs      map[string]cronjob.Definition
	createErr error
	countErr  error
}

func newMemStore() *memStore {
	return &memStore{defs: make(map[string]cronjob.Definition)}
}

func (m *memStore) ListActive(ctx context.Context) ([]cronjob.Definition, error) { return nil, nil }
func (m *memStore) ListAll(ctx context.Context) ([]cronjob.Definition, error)    { return nil, nil }

func (m *memStore) Get(ctx context.Context, name string) (cronjob.Definition, error) {
	def, ok := m.defs[name]
	if !ok {
		return cronjob.Definition{}, shared.MarkKind(errors.New(name), shared.KindNotFound)
	}
	return def, nil
}

func (m *memStore) Create(ctx context.Context, def cronjob.Definition) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.defs[def.Name]; ok {
		return shared.MarkKind(errors.New(def.Name), shared.KindConflict)
	}
	m.defs[def.Name] = def
	return nil
}

func (m *memStore) Update(ctx context.Context, def cronjob.Definition) error { return nil }
func (m *memStore) Delete(ctx context.Context, name string) error            { return nil }

func (m *memStore) Count(ctx context.Context) (total, active int64, err error) {
	if m.countErr != nil {
		return 0, 0, m.countErr
	}
	for _, def := range m.defs {
		total++
		if def.Active {
			active++
		}
	}
	return total, active, nil
}

func TestSeed_ProductionSet(t *testing.T) {
	store := newMemStore()

	require.NoError(t, Seed(context.Background(), store, false, slog.Default()))

	assert.Len(t, store.defs, len(baseJobs))
	assert.Contains(t, store.defs, "system-health-check")
	assert.NotContains(t, store.defs, "test-every-10-seconds")
}

func TestSeed_DevIncludesTestJobs(t *testing.T) {
	store := newMemStore()

	require.NoError(t, Seed(context.Background(), store, true, slog.Default()))

	assert.Len(t, store.defs, len(baseJobs)+len(devJobs))
	assert.Contains(t, store.defs, "test-every-10-seconds")

	inactive, ok := store.defs["inactive-test-job"]
	require.True(t, ok)
	assert.False(t, inactive.Active)
}

func TestSeed_Idempotent(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, Seed(ctx, store, true, slog.Default()))
	require.NoError(t, Seed(ctx, store, true, slog.Default()))

	assert.Len(t, store.defs, len(baseJobs)+len(devJobs))
}

func TestSeed_ExistingRowUntouched(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	custom := cronjob.Definition{Name: "backup-task", Spec: "0 0 4 * * *", Active: false}
	require.NoError(t, store.Create(ctx, custom))

	require.NoError(t, Seed(ctx, store, false, slog.Default()))

	got := store.defs["backup-task"]
	assert.Equal(t, "0 0 4 * * *", got.Spec)
	assert.False(t, got.Active)
}

func TestSeed_CreateFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("disk full")

	err := Seed(context.Background(), store, false, slog.Default())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}
