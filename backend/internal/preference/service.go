package preference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
)

type Service struct {
	repo Repository
	now  func() time.Time
	// mu serializes read-modify-write cycles; preference writes are rare.
	mu sync.Mutex
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the user's saved preference, or the defaults when nothing is
// saved.
func (s *Service) Get(ctx context.Context, userID string) (*Preference, error) {
	p, err := s.repo.Get(ctx, userID)
	if cerr.IsCode(err, cerr.NotFound) {
		return Default(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update deep-merges patch, a partial preference document in its JSON form,
// into the user's preference and bumps the version.
func (s *Service) Update(ctx context.Context, userID string, patch map[string]any) (*Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, err := merge(current, patch)
	if err != nil {
		return nil, err
	}
	next.UserID = userID
	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	now := s.now()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	if err := s.repo.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Reset drops the saved preference and returns the defaults.
func (s *Service) Reset(ctx context.Context, userID string) (*Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, userID); err != nil && !cerr.IsCode(err, cerr.NotFound) {
		return nil, err
	}
	return Default(userID), nil
}

// SubmitFeedback records a rating, applies trend adjustments and returns
// the updated preference with the adjustments made.
func (s *Service) SubmitFeedback(ctx context.Context, userID string, f Feedback) (*Preference, []string, error) {
	if f.Satisfaction < 1 || f.Satisfaction > 5 {
		return nil, nil, cerr.NewError(cerr.InvalidArgument, "satisfaction must be between 1 and 5", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	next := current.Clone()
	now := s.now()
	next.RecordFeedback(f, now)
	adjustments := next.AnalyzeTrends()
	if len(adjustments) > 0 {
		next.Version++
		slog.InfoContext(ctx, "preference adjusted from feedback", "user_id", userID, "adjustments", adjustments)
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	if err := s.repo.Save(ctx, next); err != nil {
		return nil, nil, err
	}
	return next, adjustments, nil
}

func merge(p *Preference, patch map[string]any) (*Preference, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal preference: %w", err))
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal preference: %w", err))
	}
	deepMerge(doc, patch)

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid preference patch", err)
	}
	var out Preference
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid preference patch", err)
	}
	return &out, nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if vm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				deepMerge(dm, vm)
				continue
			}
		}
		dst[k] = v
	}
}
