// Package engine implements the Bitcask-style log-structured storage
// engine: an append-only on-disk segment plus an in-memory key directory
// giving O(1) point lookups.
//
// Engine deliberately does no locking of its own — the concurrency model
// puts one process-wide exclusive lock at the connection server layer, so
// that a single lock acquisition spans both the in-memory key directory
// mutation and the disk I/O it coordinates with.
package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/caskdb/caskdb/internal/record"
)

// segmentFile is the name of the single active, append-only segment.
// The engine never rotates or merges segments (see DESIGN.md); file_id 0
// is carried as a field only so multi-segment operation could be added
// later without changing the key directory's shape.
const segmentFile = "0.data"

// ErrKeyNotFound is returned by Get for a key absent from the key
// directory, and used internally to distinguish "absent" from "error".
var ErrKeyNotFound = errors.New("engine: key not found")

// KeyDirEntry is the in-memory index entry for one live key: where its
// current value lives on disk, and when it was written.
type KeyDirEntry struct {
	FileID        uint32
	ValueSize     uint32
	ValuePosition int64
	Timestamp     int64
}

// Engine is a single-segment Bitcask store. It is NOT safe for concurrent
// use on its own; callers (internal/server) must serialize access with a
// single exclusive lock, per the storage engine's concurrency contract.
type Engine struct {
	dataDir   string
	appendFh  *os.File // O_APPEND|O_CREATE|O_WRONLY handle used by Put
	readFh    *os.File // read-only handle used for positioned ReadAt calls
	keyDir    map[string]KeyDirEntry
	syncOnPut bool
	log       *zap.SugaredLogger
}

// Options configures an Engine beyond the bare data directory.
type Options struct {
	// SyncOnPut, when true, calls Sync on the segment after every append —
	// a hardening of the spec's default "no explicit fsync" behavior.
	SyncOnPut bool
	Logger    *zap.SugaredLogger
}

// Open ensures dataDir exists (creating it if absent), opens or creates
// the active segment for append and for independent positioned reads, and
// replays the segment to rebuild the key directory. It fails only if the
// filesystem refuses to create the directory or the segment file.
func Open(dataDir string, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: failed to create data dir %q: %w", dataDir, err)
	}

	segPath := filepath.Join(dataDir, segmentFile)

	appendFh, err := os.OpenFile(segPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to open segment for append: %w", err)
	}

	readFh, err := os.OpenFile(segPath, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		appendFh.Close()
		return nil, fmt.Errorf("engine: failed to open segment for reads: %w", err)
	}

	e := &Engine{
		dataDir:   dataDir,
		appendFh:  appendFh,
		readFh:    readFh,
		keyDir:    make(map[string]KeyDirEntry),
		syncOnPut: opts.SyncOnPut,
		log:       opts.Logger,
	}

	if err := e.replay(); err != nil {
		appendFh.Close()
		readFh.Close()
		return nil, fmt.Errorf("engine: failed to replay segment: %w", err)
	}

	e.log.Infow("engine opened", "data_dir", dataDir, "keys", len(e.keyDir))
	return e, nil
}

// replay reconstructs the key directory by scanning the segment from
// offset 0 to EOF, installing each record's entry over any earlier one for
// the same key (last-writer-wins). It runs once, at Open.
func (e *Engine) replay() error {
	f, err := os.Open(filepath.Join(e.dataDir, segmentFile))
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<16)
	var offset int64
	count := 0

	for {
		rep, n, err := record.ReadNext(br, offset)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				// Clean end-of-log, or a truncated trailing record: either
				// way the prefix that parsed cleanly is what we keep.
				break
			}
			return err
		}

		e.keyDir[string(rep.Key)] = KeyDirEntry{
			FileID:        0,
			ValueSize:     rep.ValueSize,
			ValuePosition: rep.ValuePosition,
			Timestamp:     rep.Timestamp,
		}
		count++
		offset += n
	}

	e.log.Debugw("replay complete", "records_applied", count, "final_offset", offset)
	return nil
}

// Get returns the current value for key, or ErrKeyNotFound if no live
// entry exists.
func (e *Engine) Get(key string) ([]byte, error) {
	entry, ok := e.keyDir[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	buf := make([]byte, entry.ValueSize)
	if entry.ValueSize > 0 {
		if _, err := e.readFh.ReadAt(buf, entry.ValuePosition); err != nil {
			return nil, fmt.Errorf("engine: failed to read value for key %q at offset %d: %w", key, entry.ValuePosition, err)
		}
	}
	return buf, nil
}

// Put appends a record for (key, value) with the current wall-clock
// timestamp and installs/replaces the key directory entry for key.
func (e *Engine) Put(key string, value []byte) error {
	rec := record.Record{
		Timestamp: time.Now().Unix(),
		Key:       []byte(key),
		Value:     value,
	}
	data := rec.Encode()

	n, err := e.appendFh.Write(data)
	if err != nil {
		return fmt.Errorf("engine: failed to append record for key %q: %w", key, err)
	}
	if err := record.ValidateHeader(n, len(key), len(value)); err != nil {
		return err
	}

	if e.syncOnPut {
		if err := e.appendFh.Sync(); err != nil {
			return fmt.Errorf("engine: failed to fsync segment: %w", err)
		}
	}

	postPosition, err := e.appendFh.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("engine: failed to determine post-append position: %w", err)
	}
	valuePosition := postPosition - int64(len(value))

	e.keyDir[key] = KeyDirEntry{
		FileID:        0,
		ValueSize:     uint32(len(value)),
		ValuePosition: valuePosition,
		Timestamp:     rec.Timestamp,
	}
	return nil
}

// Delete removes key from the live key directory. The on-disk record is
// left in place — it becomes garbage, invisible to any future replay
// because the key directory, not the log, is the authoritative live-set.
// Returns false if key had no live entry.
func (e *Engine) Delete(key string) bool {
	if _, ok := e.keyDir[key]; !ok {
		return false
	}
	delete(e.keyDir, key)
	return true
}

// Keys returns a snapshot of all live keys, in unspecified order.
func (e *Engine) Keys() []string {
	keys := make([]string, 0, len(e.keyDir))
	for k := range e.keyDir {
		keys = append(keys, k)
	}
	return keys
}

// DBSize returns the number of live keys.
func (e *Engine) DBSize() int {
	return len(e.keyDir)
}

// Snapshot returns a copy of the current key directory, for tests
// comparing the live directory against one rebuilt by reopening.
func (e *Engine) Snapshot() map[string]KeyDirEntry {
	out := make(map[string]KeyDirEntry, len(e.keyDir))
	for k, v := range e.keyDir {
		out[k] = v
	}
	return out
}

// Close releases the segment file handles.
func (e *Engine) Close() error {
	var errs []error
	if err := e.appendFh.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.readFh.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("engine: close failed: %v", errs)
	}
	return nil
}
