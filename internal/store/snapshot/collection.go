// Package snapshot implements the resilient collection store backing the
// moderation core: an authoritative in-memory record set mirrored to an
// on-disk JSON-array snapshot. The mirror is rewritten wholesale on every
// mutation; a failed mirror write is logged and counted but never fails
// the logical operation.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptdeck.org/internal/obs"
)

// Collection holds records of one entity type. All mutators apply as atomic
// read-modify-write sequences under a single mutex so concurrent requests
// cannot interleave into an inconsistent record.
type Collection[T any] struct {
	mu    sync.Mutex
	name  string
	path  string
	key   func(T) string
	items []T
}

// New loads the snapshot at path, falling back to the baseline records when
// the file is absent or malformed. The baseline is best-effort written out
// so a fresh deployment leaves a mirror behind.
func New[T any](name, path string, key func(T) string, baseline []T) *Collection[T] {
	c := &Collection[T]{name: name, path: path, key: key}
	items, ok := c.read()
	if !ok {
		items = append([]T(nil), baseline...)
	}
	c.items = items
	if !ok {
		c.write()
	}
	return c
}

// Len reports the number of records.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Items returns a copy of every record.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

// Find returns the record with the given key.
func (c *Collection[T]) Find(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if c.key(item) == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Where returns copies of the records matching pred.
func (c *Collection[T]) Where(pred func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, item := range c.items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Upsert inserts the record or replaces the one sharing its key, then
// mirrors the collection.
func (c *Collection[T]) Upsert(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(item)
	for i := range c.items {
		if c.key(c.items[i]) == k {
			c.items[i] = item
			c.write()
			return
		}
	}
	c.items = append(c.items, item)
	c.write()
}

// Append adds records without key lookup; used by batch ingest where ids
// were assigned up front.
func (c *Collection[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, items...)
	c.write()
}

// Update applies fn to the record with the given key. The bool reports
// whether the record existed; fn's error aborts the mutation and nothing
// is written.
func (c *Collection[T]) Update(key string, fn func(*T) error) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.key(c.items[i]) != key {
			continue
		}
		updated := c.items[i]
		if err := fn(&updated); err != nil {
			var zero T
			return zero, true, err
		}
		c.items[i] = updated
		c.write()
		return updated, true, nil
	}
	var zero T
	return zero, false, nil
}

// UpdateWhere applies fn to every record matching pred and reports how many
// records changed.
func (c *Collection[T]) UpdateWhere(pred func(T) bool, fn func(*T)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.items {
		if !pred(c.items[i]) {
			continue
		}
		fn(&c.items[i])
		n++
	}
	if n > 0 {
		c.write()
	}
	return n
}

// Remove deletes the record with the given key permanently, from memory and
// from the mirror.
func (c *Collection[T]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.key(c.items[i]) == key {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.write()
			return true
		}
	}
	return false
}

// RemoveWhere deletes every record matching pred and reports how many were
// removed.
func (c *Collection[T]) RemoveWhere(pred func(T) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0]
	removed := 0
	for _, item := range c.items {
		if pred(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	if removed > 0 {
		c.write()
	}
	return removed
}

// Replace swaps the whole collection.
func (c *Collection[T]) Replace(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T(nil), items...)
	c.write()
}

// read loads the snapshot file. A missing or malformed file is non-fatal;
// the caller falls back to the baseline.
func (c *Collection[T]) read() ([]T, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			obs.LogEvent(map[string]any{
				"ts":         time.Now().UTC().Format(time.RFC3339Nano),
				"level":      "warn",
				"msg":        "snapshot_read_failed",
				"collection": c.name,
				"error":      err.Error(),
			})
		}
		return nil, false
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		obs.LogEvent(map[string]any{
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
			"level":      "warn",
			"msg":        "snapshot_malformed",
			"collection": c.name,
			"error":      err.Error(),
		})
		return nil, false
	}
	return items, true
}

// write mirrors the in-memory collection to disk. Must hold c.mu. Failure
// is logged and counted; the in-memory result already succeeded so the
// error never propagates.
func (c *Collection[T]) write() {
	err := func() error {
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return err
		}
		data, err := json.MarshalIndent(c.items, "", "  ")
		if err != nil {
			return err
		}
		tmp := c.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, c.path)
	}()
	if err == nil {
		return
	}
	obs.IncSnapshotFailure(c.name)
	obs.LogEvent(map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"level":      "error",
		"msg":        "snapshot_write_failed",
		"collection": c.name,
		"path":       c.path,
		"error":      err.Error(),
	})
}
