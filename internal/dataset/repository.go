package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/electricity-map/internal/common"
	"github.com/i474232898/electricity-map/internal/metrics"
)

// ErrNotLoaded is returned while no dataset is available.
var ErrNotLoaded = errors.New("historical dataset not loaded")

// Open returns a reader for a file path or an http(s) URL. Non-2xx responses are errors.
func Open(ctx context.Context, client *http.Client, location string) (io.ReadCloser, error) {
	if !common.IsRemote(location) {
		return os.Open(location)
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to load %s: %s", location, resp.Status)
	}
	return resp.Body, nil
}

// Repository holds the loaded dataset for concurrent readers.
type Repository struct {
	client  *http.Client
	loc     *time.Location
	log     zerolog.Logger
	metrics metrics.Recorder

	mu      sync.RWMutex
	dataset *Dataset
	lastErr error
}

// NewRepository creates an empty Repository.
func NewRepository(client *http.Client, loc *time.Location, log zerolog.Logger, rec metrics.Recorder) *Repository {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Repository{client: client, loc: loc, log: log, metrics: rec, lastErr: ErrNotLoaded}
}

// Location is the time zone used for timestamps without an offset.
func (r *Repository) Location() *time.Location {
	return r.loc
}

// LoadFrom reads and parses the dataset at location, replacing the current one
// only on success. A dataset in which every row was dropped is an error.
func (r *Repository) LoadFrom(ctx context.Context, location string) error {
	start := time.Now()
	rc, err := Open(ctx, r.client, location)
	if err != nil {
		return r.fail(fmt.Errorf("open dataset: %w", err))
	}
	defer rc.Close()

	ds, err := Load(ctx, rc, Options{
		Location: r.loc,
		OnProgress: func(p Progress) {
			r.log.Debug().Int("chunk", p.Chunk).Int("rows", p.Rows).Int("accepted", p.Accepted).Msg("dataset: parsing")
		},
	})
	if err != nil {
		return r.fail(err)
	}
	r.metrics.AddDatasetRows(ds.Report.Accepted, ds.Report.Rejected)
	if len(ds.Records) == 0 {
		return r.fail(ErrNoValidRows)
	}

	r.Set(ds)
	r.log.Info().
		Str("source", location).
		Int("accepted", ds.Report.Accepted).
		Int("rejected", ds.Report.Rejected).
		Int("days", len(ds.Dates)).
		Dur("elapsed", time.Since(start)).
		Msg("dataset: loaded")
	return nil
}

// Set replaces the dataset.
func (r *Repository) Set(ds *Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dataset = ds
	r.lastErr = nil
}

// Get returns the dataset, or the reason none is available.
func (r *Repository) Get() (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dataset == nil {
		return nil, r.lastErr
	}
	return r.dataset, nil
}

func (r *Repository) fail(err error) error {
	r.mu.Lock()
	if r.dataset == nil {
		r.lastErr = err
	}
	r.mu.Unlock()
	r.log.Error().Err(err).Msg("dataset: load failed")
	return err
}
