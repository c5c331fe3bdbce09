package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

const workflowStatesPrefix = "workflow_states"

// YAMLRepository stores each session as a state document plus a version
// marker next to it.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func paths(userID, sessionID string) (statePath, versionPath string, err error) {
	for _, id := range []string{userID, sessionID} {
		if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
			return "", "", cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid workflow session id %q", id), nil)
		}
	}
	base := fmt.Sprintf("%s/%s/%s", workflowStatesPrefix, userID, sessionID)
	return base + ".yaml", base + ".version", nil
}

func (r *YAMLRepository) Load(ctx context.Context, userID, sessionID string) (*workflow.State, error) {
	statePath, versionPath, err := paths(userID, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := r.storage.Read(ctx, statePath)
	if err != nil {
		return nil, cerr.WrapStorageReadError("workflow state", err)
	}

	version, err := r.storage.Read(ctx, versionPath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, cerr.WrapStorageReadError("workflow state version", err)
	}
	if strings.TrimSpace(string(version)) != workflow.SchemaVersion {
		slog.InfoContext(ctx, "discarding workflow state with stale schema version",
			"session_id", sessionID, "version", strings.TrimSpace(string(version)))
		if err := r.Delete(ctx, userID, sessionID); err != nil && !cerr.IsCode(err, cerr.NotFound) {
			return nil, err
		}
		return nil, cerr.NewError(cerr.NotFound, "workflow state not found", nil)
	}

	var s workflow.State
	if err := yaml.Unmarshal(data, &s); err != nil || !s.Valid() {
		slog.WarnContext(ctx, "discarding unreadable workflow state", "session_id", sessionID, "error", err)
		return nil, cerr.NewError(cerr.NotFound, "workflow state not found", nil)
	}
	return &s, nil
}

func (r *YAMLRepository) Save(ctx context.Context, userID, sessionID string, s *workflow.State) error {
	statePath, versionPath, err := paths(userID, sessionID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal workflow state: %w", err))
	}
	if err := r.storage.Write(ctx, statePath, data); err != nil {
		return cerr.WrapStorageWriteError("workflow state", err)
	}
	if err := r.storage.Write(ctx, versionPath, []byte(workflow.SchemaVersion)); err != nil {
		return cerr.WrapStorageWriteError("workflow state version", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, userID, sessionID string) error {
	statePath, versionPath, err := paths(userID, sessionID)
	if err != nil {
		return err
	}
	if err := r.storage.Delete(ctx, statePath); err != nil {
		return cerr.WrapStorageDeleteError("workflow state", err)
	}
	if err := r.storage.Delete(ctx, versionPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageDeleteError("workflow state version", err)
	}
	return nil
}
