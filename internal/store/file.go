package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/i474232898/electricity-map/internal/electricity"
	"github.com/i474232898/electricity-map/internal/metrics"
)

// CompressedSuffix selects zstd compression for the snapshot file.
const CompressedSuffix = ".zst"

// FileStore persists a snapshot as a single JSON document.
type FileStore struct {
	path     string
	compress bool
	log      zerolog.Logger
	metrics  metrics.Recorder
}

// NewFileStore creates a FileStore writing to path. Paths ending in ".zst" are
// written zstd-compressed.
func NewFileStore(path string, log zerolog.Logger, rec metrics.Recorder) *FileStore {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &FileStore{
		path:     path,
		compress: strings.HasSuffix(path, CompressedSuffix),
		log:      log,
		metrics:  rec,
	}
}

// Path returns the target file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save serializes snapshot and replaces the target file, creating the
// containing directory when missing. The file is written to a temporary
// sibling and renamed into place.
func (s *FileStore) Save(snapshot electricity.Snapshot) error {
	start := time.Now()
	defer func() { s.metrics.ObserveSnapshotSave(time.Since(start)) }()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if s.compress {
		if data, err = compress(data); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile := s.path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}
	if err = os.Rename(tmpFile, s.path); err != nil {
		os.Remove(tmpFile)
		return err
	}

	s.log.Info().Str("path", s.path).Int("records", len(snapshot.History)).Msg("snapshot saved")
	return nil
}

// Load reads and decodes the snapshot file. A missing, unreadable or
// undecodable file yields ok=false.
func (s *FileStore) Load() (electricity.Snapshot, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("snapshot unreadable")
		}
		return electricity.Snapshot{}, false
	}

	if s.compress {
		if data, err = decompress(data); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("snapshot not valid zstd")
			return electricity.Snapshot{}, false
		}
	}

	var snapshot electricity.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("snapshot not valid JSON")
		return electricity.Snapshot{}, false
	}
	return snapshot, true
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
