package repositoryimpl_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

func newRepo(t *testing.T) *repositoryimpl.YAMLRepository {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(local)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestYAMLRepository_Conversations(t *testing.T) {
	repo := newRepo(t)
	ctx := t.Context()

	conv := chat.NewConversation("user-1", "casual_chat", "买一台咖啡机", now)
	require.NoError(t, repo.CreateConversation(ctx, conv))
	assert.True(t, cerr.IsCode(repo.CreateConversation(ctx, conv), cerr.AlreadyExists))

	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv, got)

	_, err = repo.FindByEngineID(ctx, "3f0c2a8e-6a41-4a5b-9d7e-1c2b3a4d5e6f")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	conv.EngineConversationID = "3f0c2a8e-6a41-4a5b-9d7e-1c2b3a4d5e6f"
	require.NoError(t, repo.UpdateConversation(ctx, conv))
	got, err = repo.FindByEngineID(ctx, conv.EngineConversationID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = repo.GetConversation(ctx, "../secrets")
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestYAMLRepository_MessagesKeepArrivalOrder(t *testing.T) {
	repo := newRepo(t)
	ctx := t.Context()
	conv := chat.NewConversation("user-1", "casual_chat", "q", now)

	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, repo.AppendMessage(ctx, chat.NewMessage(conv, chat.RoleUser, content, now)))
	}
	msgs, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)

	empty, err := repo.ListMessages(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
