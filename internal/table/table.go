// Package table implements the persisted key-value table every feature of the
// assistant is built on (mutes, cooldowns, karma, rules, settings, statistics).
//
// A Table is a single-process, single-file store: the whole mapping lives in
// memory and is written out as one JSON object after every mutation. Writes
// are intentionally simple (serialize everything, write a temp file, fsync,
// rename) because tables hold tens to low thousands of entries and durability
// matters more than write latency.
//
// Concurrency model:
//   - Mutations are serialized by a writer lock (single-writer discipline).
//     Read-modify-write sequences go through Update so the check and the write
//     happen under the same lock.
//   - Mutations are copy-on-write. The next mapping is built on a private
//     copy, persisted, and only then swapped in. Readers therefore always see
//     the last fully persisted snapshot and a failed flush needs no explicit
//     rollback: the previous mapping is simply kept.
//
// On disk, JSON object keys are emitted sorted, so loading a document and
// saving it unmodified reproduces the same bytes.
package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-assistant/internal/metrics"
)

// writeFile is the atomic write used by every table. Tests replace it to
// simulate disk failures.
var writeFile = writeAtomic

// Table is a persisted mapping from K to V backed by one JSON file.
// It is safe for concurrent use.
type Table[K comparable, V any] struct {
	name  string
	path  string
	codec KeyCodec[K]

	wmu  sync.Mutex   // serializes mutations
	mu   sync.RWMutex // guards the data pointer swap
	data map[K]V
}

// Open loads the table stored at path, creating the parent directory when
// needed. A missing or empty file yields an empty table.
func Open[K comparable, V any](path string, codec KeyCodec[K]) (*Table[K, V], error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrPersistence)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	t := &Table[K, V]{
		name:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		path:  path,
		codec: codec,
		data:  make(map[K]V),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %w", ErrPersistence, path, err)
	case len(strings.TrimSpace(string(raw))) == 0:
		return t, nil
	}

	var doc map[string]V
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrPersistence, path, err)
	}
	for s, v := range doc {
		k, err := codec.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: decode key %q in %s: %w", ErrPersistence, s, path, err)
		}
		if _, dup := t.data[k]; dup {
			return nil, fmt.Errorf("%w: key %q in %s: %w", ErrPersistence, s, path, ErrDuplicateKey)
		}
		t.data[k] = v
	}

	log.Debug().Str("table", t.name).Int("entries", len(t.data)).Msg("table loaded")
	return t, nil
}

// Name returns the table name (the file name without extension).
func (t *Table[K, V]) Name() string { return t.name }

// Path returns the backing file path.
func (t *Table[K, V]) Path() string { return t.path }

// Has reports whether key is present.
func (t *Table[K, V]) Has(key K) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.data[key]
	return ok
}

// Get returns the value stored under key or ErrKeyNotFound.
func (t *Table[K, V]) Get(key K) (V, error) {
	v, ok := t.Lookup(key)
	if !ok {
		return v, ErrKeyNotFound
	}
	return v, nil
}

// Lookup returns the value stored under key and whether it was present.
func (t *Table[K, V]) Lookup(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[key]
	return v, ok
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// Snapshot returns a copy of the current mapping.
func (t *Table[K, V]) Snapshot() map[K]V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.data)
}

// Set upserts key and persists the table before returning.
func (t *Table[K, V]) Set(key K, value V) error {
	return t.mutate(func(next map[K]V) (bool, error) {
		next[key] = value
		return true, nil
	})
}

// Add inserts key, failing with ErrDuplicateKey when it already exists.
func (t *Table[K, V]) Add(key K, value V) error {
	return t.mutate(func(next map[K]V) (bool, error) {
		if _, ok := next[key]; ok {
			return false, ErrDuplicateKey
		}
		next[key] = value
		return true, nil
	})
}

// Remove deletes key, failing with ErrKeyNotFound when it is absent.
func (t *Table[K, V]) Remove(key K) error {
	return t.mutate(func(next map[K]V) (bool, error) {
		if _, ok := next[key]; !ok {
			return false, ErrKeyNotFound
		}
		delete(next, key)
		return true, nil
	})
}

// Update runs fn with the current value of key under the writer lock. When fn
// reports changed, the returned value is stored and the table persisted;
// otherwise nothing is written. Update returns the value held under key once
// it completes.
func (t *Table[K, V]) Update(key K, fn func(cur V, ok bool) (next V, changed bool)) (V, error) {
	var out V
	err := t.mutate(func(next map[K]V) (bool, error) {
		cur, ok := next[key]
		v, changed := fn(cur, ok)
		if !changed {
			out = cur
			return false, nil
		}
		next[key] = v
		out = v
		return true, nil
	})
	return out, err
}

// mutate applies fn to a private copy of the mapping, persists it, and swaps
// it in. Nothing is swapped when fn fails, reports no change, or the flush
// fails.
func (t *Table[K, V]) mutate(fn func(next map[K]V) (bool, error)) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	// Only writers replace t.data and they hold wmu, so reading it here
	// without mu is safe.
	next := maps.Clone(t.data)
	if next == nil {
		next = make(map[K]V)
	}
	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}
	if err := t.persist(next); err != nil {
		return err
	}

	t.mu.Lock()
	t.data = next
	t.mu.Unlock()
	return nil
}

// persist serializes m and atomically replaces the backing file.
func (t *Table[K, V]) persist(m map[K]V) error {
	start := time.Now()
	b, err := t.encode(m)
	if err == nil {
		err = writeFile(t.path, b)
	}
	metrics.TablePersistDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TablePersists.WithLabelValues(t.name, "error").Inc()
		log.Error().Err(err).Str("table", t.name).Str("path", t.path).Msg("table flush failed")
		return fmt.Errorf("%w: %s: %w", ErrPersistence, t.path, err)
	}
	metrics.TablePersists.WithLabelValues(t.name, "ok").Inc()
	return nil
}

func (t *Table[K, V]) encode(m map[K]V) ([]byte, error) {
	doc := make(map[string]V, len(m))
	for k, v := range m {
		doc[t.codec.Encode(k)] = v
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// writeAtomic writes b to a temp file next to path, syncs it, and renames it
// over path so readers of the file never observe a partial document.
func writeAtomic(path string, b []byte) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
