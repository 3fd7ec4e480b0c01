package domain

import "context"

// Database defines lifecycle operations for the backing store. The
// implementation owns its own migration files and strategy so the whole
// persistence layer can be swapped behind the repository interfaces.
type Database interface {
	Migrate(ctx context.Context) error
	Close() error
}
