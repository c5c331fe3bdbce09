package repositoryimpl

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/preference"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

const preferencesPrefix = "preferences"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(userID string) (string, error) {
	if userID == "" || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return "", cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid user id %q", userID), nil)
	}
	return fmt.Sprintf("%s/%s.yaml", preferencesPrefix, userID), nil
}

func (r *YAMLRepository) Get(ctx context.Context, userID string) (*preference.Preference, error) {
	p, err := path(userID)
	if err != nil {
		return nil, err
	}
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("preference", err)
	}
	var pref preference.Preference
	if err := yaml.Unmarshal(data, &pref); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal preference: %w", err))
	}
	return &pref, nil
}

func (r *YAMLRepository) Save(ctx context.Context, pref *preference.Preference) error {
	p, err := path(pref.UserID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(pref)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal preference: %w", err))
	}
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("preference", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, userID string) error {
	p, err := path(userID)
	if err != nil {
		return err
	}
	if err := r.storage.Delete(ctx, p); err != nil {
		return cerr.WrapStorageDeleteError("preference", err)
	}
	return nil
}
