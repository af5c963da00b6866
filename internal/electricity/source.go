package electricity

import "context"

// Source fetches the four upstream series for the configured zone.
// FetchAll either returns all of them or an error; partial results are never returned.
type Source interface {
	FetchAll(ctx context.Context) (Bundle, error)
}

// Store is the contract a snapshot persistence backend must satisfy.
// Load reports ok=false when there is no usable snapshot; that is an expected
// cold-start state rather than an error.
type Store interface {
	Save(snapshot Snapshot) error
	Load() (snapshot Snapshot, ok bool)
}
