package repositoryimpl

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

func repositories(t *testing.T) map[string]agenttask.Repository {
	t.Helper()
	ctx := context.Background()

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqliteRepo, err := NewSQLiteRepository(ctx, db)
	require.NoError(t, err)

	return map[string]agenttask.Repository{
		"yaml":   NewYAMLRepository(local),
		"sqlite": sqliteRepo,
	}
}

func newTask(id, user string, updated time.Time) *agenttask.AgentTask {
	return &agenttask.AgentTask{
		ConversationID:  id,
		UserID:          user,
		Mode:            stage.ModeStandard,
		Stages:          agenttask.DefaultStages(stage.ModeStandard),
		CurrentStageKey: stage.KeyReceive,
		LastEventAt:     updated,
		CreatedAt:       updated,
		UpdatedAt:       updated,
	}
}

func TestRepository_CreateGet(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			task := newTask("conv-1", "user-1", now)
			require.NoError(t, repo.Create(ctx, task))
			assert.Equal(t, int64(1), task.Version)

			got, err := repo.Get(ctx, "conv-1")
			require.NoError(t, err)
			assert.Equal(t, "user-1", got.UserID)
			assert.Equal(t, int64(1), got.Version)
			assert.Len(t, got.Stages, 6)
			assert.True(t, now.Equal(got.UpdatedAt))

			err = repo.Create(ctx, newTask("conv-1", "user-1", now))
			assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

			_, err = repo.Get(ctx, "missing")
			assert.True(t, cerr.IsCode(err, cerr.NotFound))
		})
	}
}

func TestRepository_UpdateIsCompareAndSwap(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, repo.Create(ctx, newTask("conv-cas", "user-1", now)))

			a, err := repo.Get(ctx, "conv-cas")
			require.NoError(t, err)
			b, err := repo.Get(ctx, "conv-cas")
			require.NoError(t, err)

			a.CurrentStageKey = stage.KeyDeep
			require.NoError(t, repo.Update(ctx, a))
			assert.Equal(t, int64(2), a.Version)

			b.CurrentStageKey = stage.KeyCheck
			err = repo.Update(ctx, b)
			assert.True(t, cerr.IsCode(err, cerr.Aborted))
			assert.Equal(t, int64(1), b.Version)

			got, err := repo.Get(ctx, "conv-cas")
			require.NoError(t, err)
			assert.Equal(t, stage.KeyDeep, got.CurrentStageKey)
			assert.Equal(t, int64(2), got.Version)

			missing := newTask("conv-none", "user-1", now)
			missing.Version = 1
			assert.True(t, cerr.IsCode(repo.Update(ctx, missing), cerr.NotFound))
		})
	}
}

func TestRepository_ListByUserNewestFirst(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 3; i++ {
				require.NoError(t, repo.Create(ctx, newTask(fmt.Sprintf("conv-%d", i), "user-1", base.Add(time.Duration(i)*time.Hour))))
			}
			require.NoError(t, repo.Create(ctx, newTask("conv-other", "user-2", base)))

			tasks, total, err := repo.List(ctx, "user-1", 2, 0)
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			require.Len(t, tasks, 2)
			assert.Equal(t, "conv-2", tasks[0].ConversationID)
			assert.Equal(t, "conv-1", tasks[1].ConversationID)

			tasks, _, err = repo.List(ctx, "user-1", 10, 2)
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, "conv-0", tasks[0].ConversationID)

			tasks, total, err = repo.List(ctx, "user-1", 0, 5)
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Empty(t, tasks)
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, newTask("conv-del", "user-1", time.Now())))
			require.NoError(t, repo.Delete(ctx, "conv-del"))
			_, err := repo.Get(ctx, "conv-del")
			assert.True(t, cerr.IsCode(err, cerr.NotFound))
			assert.True(t, cerr.IsCode(repo.Delete(ctx, "conv-del"), cerr.NotFound))
		})
	}
}

func TestYAMLRepository_RejectsPathLikeIDs(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(local)
	_, err = repo.Get(context.Background(), "../escape")
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}
