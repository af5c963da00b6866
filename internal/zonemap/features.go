package zonemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/i474232898/electricity-map/internal/dataset"
)

// ErrNotLoaded is returned while no polygons are available.
var ErrNotLoaded = errors.New("geojson features not loaded")

// FeatureStore holds the country polygons for concurrent readers.
type FeatureStore struct {
	client *http.Client
	log    zerolog.Logger

	mu       sync.RWMutex
	features *geojson.FeatureCollection
}

func NewFeatureStore(client *http.Client, log zerolog.Logger) *FeatureStore {
	return &FeatureStore{client: client, log: log}
}

// LoadFrom reads a FeatureCollection from a file path or an http(s) URL.
func (s *FeatureStore) LoadFrom(ctx context.Context, location string) error {
	rc, err := dataset.Open(ctx, s.client, location)
	if err != nil {
		s.log.Error().Err(err).Str("source", location).Msg("geojson: load failed")
		return fmt.Errorf("open geojson: %w", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		s.log.Error().Err(err).Str("source", location).Msg("geojson: decode failed")
		return fmt.Errorf("decode geojson: %w", err)
	}

	s.Set(fc)
	s.log.Info().Str("source", location).Int("features", len(fc.Features)).Msg("geojson: loaded")
	return nil
}

func (s *FeatureStore) Set(fc *geojson.FeatureCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = fc
}

// Get returns the loaded collection. Callers must not modify it.
func (s *FeatureStore) Get() (*geojson.FeatureCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.features == nil {
		return nil, ErrNotLoaded
	}
	return s.features, nil
}
