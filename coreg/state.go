package coreg

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntrySnapshot is the serializable view of one entry's reconciled state.
type EntrySnapshot struct {
	Entry       string              `json:"entry"`
	Results     []*PositionedResult `json:"results"`
	Report      MergeReport         `json:"report"`
	LastUpdated int64               `json:"lastUpdated"`
}

// EntryTracker tracks reconciled result sets per measurement entry for the
// HTTP endpoints and the results cache. Entries are independent; the tracker
// guards its maps with mu and serializes reconciliation per entry, since the
// merge mutates result instances that readers share.
type EntryTracker struct {
	mu         sync.RWMutex
	alignments map[string]*RectangularAlignment
	results    map[string]*EntrySnapshot
	reconciles map[string]*sync.Mutex     // per-entry reconciliation locks
	encoded    map[string]json.RawMessage // last marshaled snapshot per entry, for cache writes
	cachePath  string                     // path to the results cache file; empty disables persistence
}

// NewEntryTracker creates a new entry tracker
func NewEntryTracker() *EntryTracker {
	return &EntryTracker{
		alignments: make(map[string]*RectangularAlignment),
		results:    make(map[string]*EntrySnapshot),
		reconciles: make(map[string]*sync.Mutex),
		encoded:    make(map[string]json.RawMessage),
	}
}

// NewEntryTrackerWithCache creates a tracker that persists reconciled result
// sets to the given cache file. If the file exists, the cached results are
// loaded on creation.
func NewEntryTrackerWithCache(cachePath string) *EntryTracker {
	t := NewEntryTracker()
	t.cachePath = cachePath
	if cachePath != "" {
		if snapshots, err := LoadResultsCache(cachePath); err == nil {
			for id, snap := range snapshots {
				t.results[id] = snap
				if data, err := json.Marshal(snap); err == nil {
					t.encoded[id] = data
				}
			}
		}
	}
	return t
}

// SetAlignment stores the sample alignment for an entry
func (t *EntryTracker) SetAlignment(entryID string, a *RectangularAlignment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alignments[entryID] = a
}

// GetAlignment returns the sample alignment for an entry, or nil
func (t *EntryTracker) GetAlignment(entryID string) *RectangularAlignment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alignments[entryID]
}

// GetResults returns the reconciled results for an entry. The returned slice
// is a copy; the result instances are shared so identity survives re-imports.
func (t *EntryTracker) GetResults(entryID string) []*PositionedResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.results[entryID]
	if !ok {
		return nil
	}
	out := make([]*PositionedResult, len(snap.Results))
	copy(out, snap.Results)
	return out
}

// GetSnapshot returns the full snapshot for an entry, or nil
func (t *EntryTracker) GetSnapshot(entryID string) *EntrySnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.results[entryID]
}

// UpdateResults replaces an entry's result set with a freshly reconciled one
// and persists the cache when configured. The cache is written while the lock
// is held so snapshots reach disk in the order they were taken. Only the
// updated entry's snapshot is marshaled; other entries are written from
// their last marshaled form, whose result instances may still be mid-merge.
func (t *EntryTracker) UpdateResults(entryID string, results []*PositionedResult, report MergeReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := &EntrySnapshot{
		Entry:       entryID,
		Results:     results,
		Report:      report,
		LastUpdated: time.Now().Unix(),
	}
	t.results[entryID] = snap
	if t.cachePath == "" {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("warning: failed to encode results for %s: %v", entryID, err)
		return
	}
	t.encoded[entryID] = data
	if err := writeResultsCache(t.cachePath, t.encoded); err != nil {
		log.Printf("warning: failed to save results cache: %v", err)
	}
}

// entryLock returns the reconciliation lock for an entry, creating it on
// first use.
func (t *EntryTracker) entryLock(entryID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reconciles == nil {
		t.reconciles = make(map[string]*sync.Mutex)
	}
	lock, ok := t.reconciles[entryID]
	if !ok {
		lock = &sync.Mutex{}
		t.reconciles[entryID] = lock
	}
	return lock
}

// Reconcile applies fn to the entry's current result set and stores what it
// returns. Concurrent reconciliations of the same entry are serialized, so fn
// always sees the previous outcome and never merges into result instances
// another goroutine is still writing. A nil result slice leaves the stored
// state untouched; fn's error is passed through either way.
func (t *EntryTracker) Reconcile(entryID string, fn func(old []*PositionedResult) ([]*PositionedResult, MergeReport, error)) (MergeReport, error) {
	lock := t.entryLock(entryID)
	lock.Lock()
	defer lock.Unlock()

	results, report, err := fn(t.GetResults(entryID))
	if results == nil {
		return report, err
	}
	t.UpdateResults(entryID, results, report)
	return report, err
}

// Entries returns the IDs of all entries with reconciled results
func (t *EntryTracker) Entries() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.results))
	for id := range t.results {
		ids = append(ids, id)
	}
	return ids
}

// HasResults returns true if at least one entry has been reconciled
func (t *EntryTracker) HasResults() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.results) > 0
}

// SaveResultsCache writes all entry snapshots to disk as JSON. The file is
// replaced atomically via a temp file and rename, so readers and restarts
// never observe a torn cache.
func SaveResultsCache(path string, snapshots map[string]*EntrySnapshot) error {
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results cache: %w", err)
	}
	return writeCacheFile(path, data)
}

// writeResultsCache assembles the cache file from pre-marshaled snapshots.
func writeResultsCache(path string, encoded map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results cache: %w", err)
	}
	return writeCacheFile(path, data)
}

func writeCacheFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write results cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write results cache: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write results cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace results cache: %w", err)
	}
	return nil
}

// LoadResultsCache reads entry snapshots from a JSON file on disk.
func LoadResultsCache(path string) (map[string]*EntrySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results cache: %w", err)
	}
	var snapshots map[string]*EntrySnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("unmarshal results cache: %w", err)
	}
	return snapshots, nil
}
