package preference

import "context"

type Repository interface {
	// Get returns a cerr.NotFound error when the user has saved nothing.
	Get(ctx context.Context, userID string) (*Preference, error)
	Save(ctx context.Context, p *Preference) error
	Delete(ctx context.Context, userID string) error
}
