package repositoryimpl

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushsubscription"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

const pushSubscriptionsPrefix = "push_subscriptions"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func validSegment(kind, v string) error {
	if v == "" || v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid %s %q", kind, v), nil)
	}
	return nil
}

func userDir(userID string) (string, error) {
	if err := validSegment("user id", userID); err != nil {
		return "", err
	}
	return pushSubscriptionsPrefix + "/" + userID, nil
}

func path(userID, id string) (string, error) {
	dir, err := userDir(userID)
	if err != nil {
		return "", err
	}
	if err := validSegment("subscription id", id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s.yaml", dir, id), nil
}

func (r *YAMLRepository) Save(ctx context.Context, s *pushsubscription.Subscription) error {
	p, err := path(s.UserID, s.ID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal push subscription: %w", err))
	}
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("push_subscription", err)
	}
	return nil
}

func (r *YAMLRepository) ListByUser(ctx context.Context, userID string) ([]*pushsubscription.Subscription, error) {
	dir, err := userDir(userID)
	if err != nil {
		return nil, err
	}
	paths, err := r.storage.List(ctx, dir)
	if err != nil {
		return nil, cerr.WrapStorageReadError("push_subscriptions", err)
	}

	var all []*pushsubscription.Subscription
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s pushsubscription.Subscription
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) FindByEndpoint(ctx context.Context, userID, endpoint string) (*pushsubscription.Subscription, error) {
	subs, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, s := range subs {
		if s.Endpoint == endpoint {
			return s, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
}

func (r *YAMLRepository) Delete(ctx context.Context, userID, id string) error {
	p, err := path(userID, id)
	if err != nil {
		return err
	}
	if err := r.storage.Delete(ctx, p); err != nil {
		return cerr.WrapStorageDeleteError("push_subscription", err)
	}
	return nil
}
