package electricity

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const snapshotCacheKey = "snapshot"

// Service orchestrates fetching, merging and persisting snapshots, and serves
// reads from a short-lived in-memory copy of the persisted snapshot.
type Service struct {
	source Source
	store  Store
	cache  *gocache.Cache
	group  singleflight.Group
	log    zerolog.Logger
}

// NewService creates a new Service. A cacheTTL <= 0 disables the read cache.
func NewService(source Source, store Store, cacheTTL time.Duration, log zerolog.Logger) *Service {
	var c *gocache.Cache
	if cacheTTL > 0 {
		c = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return &Service{
		source: source,
		store:  store,
		cache:  c,
		log:    log,
	}
}

// Refresh runs one fetch -> merge -> save cycle and returns the new snapshot.
// Any failure is returned unchanged in meaning; the previously stored snapshot is kept.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	if s.source == nil {
		return Snapshot{}, fmt.Errorf("no electricity data source configured")
	}

	bundle, err := s.source.FetchAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch: %w", err)
	}

	snapshot, report := MergeSeries(bundle)
	ev := s.log.Info()
	if len(report.Rejected) > 0 || report.Duplicates > 0 {
		ev = s.log.Warn().Interface("rejected", report.Rejected)
	}
	ev.Int("powerAccepted", report.PowerAccepted).
		Int("carbonAccepted", report.CarbonAccepted).
		Int("duplicates", report.Duplicates).
		Int("records", len(snapshot.History)).
		Msg("merged upstream series")

	if err := s.store.Save(snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	s.remember(snapshot)
	return snapshot, nil
}

// GetSnapshot returns the stored snapshot. On a cold start (nothing stored) it
// fetches synchronously; concurrent cold-start callers share a single fetch.
func (s *Service) GetSnapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok := s.loadStored(); ok {
		return snap, nil
	}

	s.log.Info().Msg("no stored snapshot, fetching fresh data")
	v, err, shared := s.group.Do(snapshotCacheKey, func() (interface{}, error) {
		return s.Refresh(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	if shared {
		s.log.Debug().Msg("cold-start fetch shared with a concurrent request")
	}
	return v.(Snapshot), nil
}

// GetLatest returns the latest readings of the stored snapshot without ever
// contacting upstream. ok is false when nothing is stored.
func (s *Service) GetLatest() (Latest, bool) {
	snap, ok := s.loadStored()
	if !ok {
		return Latest{}, false
	}
	return snap.Latest, true
}

func (s *Service) loadStored() (Snapshot, bool) {
	if s.cache != nil {
		if v, found := s.cache.Get(snapshotCacheKey); found {
			return v.(Snapshot), true
		}
	}
	snap, ok := s.store.Load()
	if !ok {
		return Snapshot{}, false
	}
	s.remember(snap)
	return snap, true
}

func (s *Service) remember(snap Snapshot) {
	if s.cache != nil {
		s.cache.Set(snapshotCacheKey, snap, gocache.DefaultExpiration)
	}
}
