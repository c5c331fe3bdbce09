package agenttask

import "context"

// Repository persists agent tasks keyed by conversation id.
//
// Update is a compare-and-swap: it succeeds only when the stored version
// equals t.Version, stores t with the version incremented, and updates
// t.Version. A lost race returns a cerr.Aborted error.
type Repository interface {
	Create(ctx context.Context, t *AgentTask) error
	Get(ctx context.Context, conversationID string) (*AgentTask, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*AgentTask, int, error)
	Update(ctx context.Context, t *AgentTask) error
	Delete(ctx context.Context, conversationID string) error
}
