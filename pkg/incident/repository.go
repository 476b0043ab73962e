package incident

import "context"

// Repository persists incidents outside the process. The store applies
// every mutation to the repository first and only updates memory once the
// repository has accepted it.
type Repository interface {
	Insert(ctx context.Context, inc Incident) error
	Acknowledge(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	AppendNote(ctx context.Context, id string, note Note) error

	// Recent returns up to limit incidents, newest inserted first.
	Recent(ctx context.Context, limit int) ([]Incident, error)
}
