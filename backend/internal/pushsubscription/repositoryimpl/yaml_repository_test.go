package repositoryimpl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushsubscription"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushsubscription/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(local)
	ctx := t.Context()

	empty, err := repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.Save(ctx, &pushsubscription.Subscription{ID: "s1", UserID: "alice", Endpoint: "https://push.example/a"}))
	require.NoError(t, repo.Save(ctx, &pushsubscription.Subscription{ID: "s2", UserID: "bob", Endpoint: "https://push.example/a"}))

	got, err := repo.FindByEndpoint(ctx, "alice", "https://push.example/a")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	_, err = repo.FindByEndpoint(ctx, "alice", "https://push.example/missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	require.NoError(t, repo.Delete(ctx, "alice", "s1"))
	assert.True(t, cerr.IsCode(repo.Delete(ctx, "alice", "s1"), cerr.NotFound))

	bobs, err := repo.ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)

	assert.True(t, cerr.IsCode(repo.Save(ctx, &pushsubscription.Subscription{ID: "s3", UserID: "../x"}), cerr.InvalidArgument))
}
