package agenttask_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

func newYAMLStore(t *testing.T, opts ...agenttask.StoreOption) (*agenttask.Store, *eventbus.Bus) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	bus := eventbus.New()
	return agenttask.NewStore(repositoryimpl.NewYAMLRepository(local), bus, metrics.New(prometheus.NewRegistry()), opts...), bus
}

func TestStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store, bus := newYAMLStore(t)
	_, events := bus.Subscribe(8)

	got, err := store.Get(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "no state yet reads as nil")

	task, err := store.Upsert(ctx, agenttask.Update{
		ConversationID: "c1",
		UserID:         "u1",
		Mode:           stage.ModeStandard,
		StageKey:       stage.KeyReceive,
		Status:         stage.StatusSuccess,
		Reset:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), task.Version)

	ev := <-events
	assert.Equal(t, eventbus.TypeTaskState, ev.Type)
	assert.Equal(t, "c1", ev.ConversationID)

	task, err = store.Upsert(ctx, agenttask.Update{
		ConversationID: "c1",
		UserID:         "u1",
		Mode:           stage.ModeStandard,
		StageKey:       stage.KeyDeep,
		Status:         stage.StatusRunning,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), task.Version)

	got, err = store.Get(ctx, "c1", "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stage.KeyDeep, got.CurrentStageKey)
	assert.Equal(t, stage.StatusSuccess, got.Stage(stage.KeyPreliminary).Status)

	other, err := store.Get(ctx, "c1", "someone-else")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestStore_UpsertRequiresConversation(t *testing.T) {
	store, _ := newYAMLStore(t)
	_, err := store.Upsert(context.Background(), agenttask.Update{StageKey: stage.KeyReceive})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestStore_ConcurrentUpsertsConverge(t *testing.T) {
	ctx := context.Background()
	store, _ := newYAMLStore(t, agenttask.WithMaxAttempts(100))

	keys := []stage.Key{stage.KeyPreliminary, stage.KeyDeep, stage.KeyCheck, stage.KeyReview}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Upsert(ctx, agenttask.Update{
				ConversationID: "c-race",
				UserID:         "u1",
				Mode:           stage.ModeCasual,
				StageKey:       keys[i%len(keys)],
				Status:         stage.StatusSuccess,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	task, err := store.Get(ctx, "c-race", "u1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, int64(20), task.Version, "every upsert landed exactly once")
	for _, key := range append([]stage.Key{stage.KeyReceive}, keys...) {
		assert.Equal(t, stage.StatusSuccess, task.Stage(key).Status, key)
	}
}

// conflictingRepo loses the first n compare-and-swap attempts.
type conflictingRepo struct {
	agenttask.Repository
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (r *conflictingRepo) Update(ctx context.Context, t *agenttask.AgentTask) error {
	r.mu.Lock()
	r.calls++
	lose := r.calls <= r.conflicts
	r.mu.Unlock()
	if lose {
		return cerr.NewConflictError("agent task", t.Version, t.Version+1)
	}
	return r.Repository.Update(ctx, t)
}

func TestStore_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := &conflictingRepo{Repository: repositoryimpl.NewYAMLRepository(local), conflicts: 2}
	store := agenttask.NewStore(repo, nil, nil, agenttask.WithMaxAttempts(3))

	u := agenttask.Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyReceive, Status: stage.StatusSuccess}
	_, err = store.Upsert(ctx, u)
	require.NoError(t, err)

	u.StageKey = stage.KeyDeep
	task, err := store.Upsert(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
	assert.Equal(t, stage.KeyDeep, task.CurrentStageKey)

	repo.conflicts = 100
	_, err = store.Upsert(ctx, u)
	assert.True(t, cerr.IsCode(err, cerr.Aborted))
}

type failingRepo struct {
	agenttask.Repository
}

func (failingRepo) Get(context.Context, string) (*agenttask.AgentTask, error) {
	return nil, cerr.NewError(cerr.Internal, "server error", errors.New("disk gone"))
}

func TestStore_PropagatesStorageErrors(t *testing.T) {
	store := agenttask.NewStore(failingRepo{}, nil, nil)
	_, err := store.Upsert(context.Background(), agenttask.Update{ConversationID: "c1", StageKey: stage.KeyReceive})
	assert.True(t, cerr.IsCode(err, cerr.Internal))

	_, err = store.Get(context.Background(), "c1", "u1")
	assert.Error(t, err)
}

func TestStore_ListAndClock(t *testing.T) {
	ctx := context.Background()
	var n int
	clock := func() time.Time {
		n++
		return time.Date(2026, 1, 1, 0, 0, n, 0, time.UTC)
	}
	store, _ := newYAMLStore(t, agenttask.WithClock(clock))
	for i := 0; i < 3; i++ {
		_, err := store.Upsert(ctx, agenttask.Update{ConversationID: fmt.Sprintf("c%d", i), UserID: "u1", StageKey: stage.KeyReceive, Status: stage.StatusSuccess})
		require.NoError(t, err)
	}
	tasks, total, err := store.List(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, tasks, 3)
	assert.Equal(t, "c2", tasks[0].ConversationID)
}
