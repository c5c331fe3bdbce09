package repositoryimpl

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

const (
	conversationsPrefix = "conversations"
	engineIndexPrefix   = "conversation_engine_ids"
	messagesPrefix      = "messages"
)

// YAMLRepository stores conversations as one YAML document each, an index
// file per engine conversation id, and messages as one document per message
// under the conversation's directory. Message ids are ULIDs, so listing the
// directory yields arrival order.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func validID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid %s id %q", kind, id), nil)
	}
	return nil
}

func conversationPath(id string) (string, error) {
	if err := validID("conversation", id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s.yaml", conversationsPrefix, id), nil
}

func enginePath(engineID string) (string, error) {
	if err := validID("engine conversation", engineID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", engineIndexPrefix, engineID), nil
}

func (r *YAMLRepository) CreateConversation(ctx context.Context, c *chat.Conversation) error {
	p, err := conversationPath(c.ID)
	if err != nil {
		return err
	}
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageWriteError("conversation", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "conversation already exists", nil)
	}
	return r.writeConversation(ctx, p, c)
}

func (r *YAMLRepository) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	p, err := conversationPath(id)
	if err != nil {
		return nil, err
	}
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("conversation", err)
	}
	var c chat.Conversation
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal conversation: %w", err))
	}
	return &c, nil
}

func (r *YAMLRepository) FindByEngineID(ctx context.Context, engineID string) (*chat.Conversation, error) {
	p, err := enginePath(engineID)
	if err != nil {
		return nil, err
	}
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("conversation", err)
	}
	return r.GetConversation(ctx, strings.TrimSpace(string(data)))
}

// UpdateConversation overwrites c and records its engine id in the index.
func (r *YAMLRepository) UpdateConversation(ctx context.Context, c *chat.Conversation) error {
	p, err := conversationPath(c.ID)
	if err != nil {
		return err
	}
	if err := r.writeConversation(ctx, p, c); err != nil {
		return err
	}
	if c.EngineConversationID == "" {
		return nil
	}
	ip, err := enginePath(c.EngineConversationID)
	if err != nil {
		return err
	}
	if err := r.storage.Write(ctx, ip, []byte(c.ID)); err != nil {
		return cerr.WrapStorageWriteError("conversation index", err)
	}
	return nil
}

func (r *YAMLRepository) AppendMessage(ctx context.Context, m *chat.Message) error {
	if err := validID("conversation", m.ConversationID); err != nil {
		return err
	}
	if err := validID("message", m.ID); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal message: %w", err))
	}
	p := fmt.Sprintf("%s/%s/%s.yaml", messagesPrefix, m.ConversationID, m.ID)
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("message", err)
	}
	return nil
}

func (r *YAMLRepository) ListMessages(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	if err := validID("conversation", conversationID); err != nil {
		return nil, err
	}
	paths, err := r.storage.List(ctx, messagesPrefix+"/"+conversationID)
	if err != nil {
		return nil, cerr.WrapStorageReadError("messages", err)
	}
	messages := make([]*chat.Message, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("message", err)
		}
		var m chat.Message
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal message: %w", err))
		}
		messages = append(messages, &m)
	}
	return messages, nil
}

func (r *YAMLRepository) writeConversation(ctx context.Context, p string, c *chat.Conversation) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal conversation: %w", err))
	}
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("conversation", err)
	}
	return nil
}
