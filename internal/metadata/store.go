// Package metadata persists per-submission metadata records as keyed JSON
// files. One file per submission removes any "current record" convention:
// every stage addresses records by submission identifier.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// ErrNotFound is returned when no record exists for the given submission.
var ErrNotFound = errors.New("metadata: record not found")

// Store is a file-backed, keyed metadata store.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Write persists rec keyed by rec.File, fully replacing any prior record for
// that submission. The write is temp-then-rename so readers never observe a
// partial file.
func (s *Store) Write(rec types.MetadataRecord) error {
	if rec.File == "" {
		return errors.New("metadata: record has no file key")
	}
	if err := fileutil.WriteJSONAtomic(s.path(rec.File), rec); err != nil {
		return fmt.Errorf("write record %s: %w", rec.File, err)
	}
	return nil
}

// Read returns the most recently written record for id, or ErrNotFound.
func (s *Store) Read(id string) (types.MetadataRecord, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return types.MetadataRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.MetadataRecord{}, fmt.Errorf("read record %s: %w", id, err)
	}

	var rec types.MetadataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.MetadataRecord{}, fmt.Errorf("parse record %s: %w", id, err)
	}
	return rec, nil
}

// Extend merges additional audio properties into the existing record for id.
// Fields already present in the stored record are kept; only zero-valued
// fields are filled from update. This is the additive-only contract: upload
// writes the identity fields, extract-metadata adds the audio properties.
func (s *Store) Extend(id string, update types.MetadataRecord) (types.MetadataRecord, error) {
	rec, err := s.Read(id)
	if err != nil {
		return types.MetadataRecord{}, err
	}

	if rec.Source == "" {
		rec.Source = update.Source
	}
	if rec.Size == 0 {
		rec.Size = update.Size
	}
	if rec.Format == "" {
		rec.Format = update.Format
	}
	if rec.DurationSec == 0 {
		rec.DurationSec = update.DurationSec
	}
	if rec.SampleRate == 0 {
		rec.SampleRate = update.SampleRate
	}
	if rec.Channels == 0 {
		rec.Channels = update.Channels
	}

	if err := s.Write(rec); err != nil {
		return types.MetadataRecord{}, err
	}
	return rec, nil
}
