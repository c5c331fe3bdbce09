package workflow

import "context"

// SchemaVersion tags persisted states. A stored state carrying any other
// version is discarded on load.
const SchemaVersion = "1.0"

// Repository persists one workflow state per user session. Load returns a
// cerr.NotFound error when nothing usable is stored, including when the
// stored version differs from SchemaVersion.
type Repository interface {
	Load(ctx context.Context, userID, sessionID string) (*State, error)
	Save(ctx context.Context, userID, sessionID string, s *State) error
	Delete(ctx context.Context, userID, sessionID string) error
}
