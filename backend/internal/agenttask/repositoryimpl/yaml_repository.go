package repositoryimpl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

const agentTasksPrefix = "agent_tasks"

// YAMLRepository stores one YAML document per conversation. Version checks
// are serialised by an in-process lock, so a single server instance must own
// the storage.
type YAMLRepository struct {
	storage storage.Storage
	mu      sync.Mutex
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(conversationID string) (string, error) {
	if conversationID == "" || strings.ContainsAny(conversationID, `/\`) {
		return "", cerr.NewError(cerr.InvalidArgument, "invalid conversation id", nil)
	}
	return fmt.Sprintf("%s/%s.yaml", agentTasksPrefix, conversationID), nil
}

func (r *YAMLRepository) Create(ctx context.Context, t *agenttask.AgentTask) error {
	p, err := path(t.ConversationID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageWriteError("agent task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "agent task already exists", nil)
	}
	t.Version = 1
	return r.write(ctx, p, t)
}

func (r *YAMLRepository) Get(ctx context.Context, conversationID string) (*agenttask.AgentTask, error) {
	p, err := path(conversationID)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, p)
}

func (r *YAMLRepository) List(ctx context.Context, userID string, limit, offset int) ([]*agenttask.AgentTask, int, error) {
	paths, err := r.storage.List(ctx, agentTasksPrefix)
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("agent tasks", err)
	}

	var all []*agenttask.AgentTask
	for _, p := range paths {
		t, err := r.read(ctx, p)
		if err != nil {
			continue
		}
		if userID != "" && t.UserID != userID {
			continue
		}
		all = append(all, t)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *agenttask.AgentTask) error {
	p, err := path(t.ConversationID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read(ctx, p)
	if err != nil {
		return err
	}
	if stored.Version != t.Version {
		return cerr.NewConflictError("agent task", t.Version, stored.Version)
	}
	t.Version++
	if err := r.write(ctx, p, t); err != nil {
		t.Version--
		return err
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, conversationID string) error {
	p, err := path(conversationID)
	if err != nil {
		return err
	}
	if err := r.storage.Delete(ctx, p); err != nil {
		return cerr.WrapStorageDeleteError("agent task", err)
	}
	return nil
}

func (r *YAMLRepository) read(ctx context.Context, p string) (*agenttask.AgentTask, error) {
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent task", err)
	}
	var t agenttask.AgentTask
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent task: %w", err))
	}
	return &t, nil
}

func (r *YAMLRepository) write(ctx context.Context, p string, t *agenttask.AgentTask) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal agent task: %w", err))
	}
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("agent task", err)
	}
	return nil
}
