package pushsubscription

import "context"

// Repository stores subscriptions per user.
type Repository interface {
	// Save creates s or replaces the stored subscription with the same id.
	Save(ctx context.Context, s *Subscription) error
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)
	// FindByEndpoint returns a cerr.NotFound error when the user has no
	// subscription for endpoint.
	FindByEndpoint(ctx context.Context, userID, endpoint string) (*Subscription, error)
	Delete(ctx context.Context, userID, id string) error
}
