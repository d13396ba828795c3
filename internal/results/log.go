// Package results maintains the shared results log: a JSON array of
// predictions keyed by submission identifier, appended by the inference
// stage and polled by the correlator.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"

	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// ErrTransient marks a log that is momentarily unreadable, typically because
// a writer is mid-replace. Readers should treat it as "no result yet".
var ErrTransient = errors.New("results: log transiently unreadable")

// ErrNoMatch is returned by Find when the log parses but holds no entry for
// the requested submission.
var ErrNoMatch = errors.New("results: no entry for submission")

// Log is the file-backed results log. Appends are serialized across
// processes with a sidecar flock, and each rewrite is temp-then-rename so
// concurrent readers never see a torn file.
type Log struct {
	path string
	lock *flock.Flock
}

// NewLog returns a log stored at path.
func NewLog(path string) *Log {
	return &Log{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the underlying file location.
func (l *Log) Path() string { return l.path }

// Read returns every entry currently in the log. A missing file yields an
// empty log; a file that fails to parse yields ErrTransient.
func (l *Log) Read() ([]types.ResultEntry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var entries []types.ResultEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return entries, nil
}

// Find returns the entry keyed by id, ErrNoMatch when the log has no such
// entry, or ErrTransient when the log cannot currently be read.
func (l *Log) Find(id string) (types.ResultEntry, error) {
	entries, err := l.Read()
	if err != nil {
		return types.ResultEntry{}, err
	}
	for _, e := range entries {
		if e.File == id {
			return e, nil
		}
	}
	return types.ResultEntry{}, fmt.Errorf("%w: %s", ErrNoMatch, id)
}

// Append adds entry to the log, replacing any previous entry with the same
// key so a reprocessed submission surfaces only its latest prediction.
func (l *Log) Append(entry types.ResultEntry) error {
	if entry.File == "" {
		return errors.New("results: entry has no file key")
	}

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock results log: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	entries, err := l.Read()
	if err != nil && !errors.Is(err, ErrTransient) {
		return err
	}
	// A transiently unreadable log under the writer lock means a previous
	// writer died mid-replace; start from the readable state (empty).

	replaced := false
	for i := range entries {
		if entries[i].File == entry.File {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	if err := fileutil.WriteJSONAtomic(l.path, entries); err != nil {
		return fmt.Errorf("rewrite results log: %w", err)
	}
	return nil
}
