// Package knowledge provides the shared write-once context store that
// agents read from and publish into.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/daicraft/dai/pkg/models"
)

// ErrDuplicateKey indicates a second write under an already-written key.
var ErrDuplicateKey = errors.New("knowledge key already written")

// ErrNotFound indicates a read of a key nothing has produced yet.
var ErrNotFound = errors.New("knowledge key not found")

// Entry is one immutable knowledge value plus its metadata.
type Entry struct {
	// Key is the context key, usually the producer task's ID.
	Key string `json:"key"`
	// Value is the immutable payload.
	Value string `json:"value"`
	// Producer is the task that wrote the entry.
	Producer string `json:"producer"`
	// WrittenAt is when the entry was accepted.
	WrittenAt time.Time `json:"written_at"`
}

// Store is the run-scoped knowledge blackboard. Values are write-once: a
// key, once written, is never mutated for the lifetime of the run. Reads
// return the immutable entries directly, so concurrent readers never
// contend beyond the index lock.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewStore creates an empty knowledge store for one run.
func NewStore() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Put records a value under the given key. Fails with ErrDuplicateKey if
// the key was already written this run; the existing value is unchanged.
func (s *Store) Put(key, value, producer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		return fmt.Errorf("put %q (producer %s, already written by %s): %w",
			key, producer, existing.Producer, ErrDuplicateKey)
	}
	s.entries[key] = &Entry{
		Key:       key,
		Value:     value,
		Producer:  producer,
		WrittenAt: time.Now(),
	}
	return nil
}

// Get returns the value under the given key.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", fmt.Errorf("get %q: %w", key, ErrNotFound)
	}
	return entry.Value, nil
}

// Entry returns the full entry under the given key.
func (s *Store) Entry(key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("entry %q: %w", key, ErrNotFound)
	}
	return entry, nil
}

// Keys returns every written key, sorted for stable reporting.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of written entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SnapshotFor returns a read-only view restricted to the keys the task
// declares as inputs: its predecessors' outputs plus any named shared
// keys. Keys not yet written are simply absent from the view.
func (s *Store) SnapshotFor(task *models.Task) View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := View{entries: make(map[string]*Entry)}
	for _, key := range task.InputKeys() {
		if entry, ok := s.entries[key]; ok {
			view.entries[key] = entry
		}
	}
	return view
}

// View is an immutable, task-scoped window onto the store.
type View struct {
	entries map[string]*Entry
}

// Get returns the value under the given key within the view.
func (v View) Get(key string) (string, error) {
	entry, ok := v.entries[key]
	if !ok {
		return "", fmt.Errorf("view get %q: %w", key, ErrNotFound)
	}
	return entry.Value, nil
}

// Has reports whether the view contains the given key.
func (v View) Has(key string) bool {
	_, ok := v.entries[key]
	return ok
}

// Keys returns the view's keys, sorted.
func (v View) Keys() []string {
	keys := make([]string, 0, len(v.entries))
	for k := range v.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the view as a plain map for template rendering.
func (v View) Values() map[string]string {
	values := make(map[string]string, len(v.entries))
	for k, entry := range v.entries {
		values[k] = entry.Value
	}
	return values
}

// Save writes the store's entries as JSON to the given path, creating
// parent directories as needed.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, k := range s.keysLocked() {
		entries = append(entries, s.entries[k])
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create knowledge directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode knowledge: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write knowledge file: %w", err)
	}
	return nil
}

// Load reads entries saved by Save into an empty store.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode knowledge file %s: %w", path, err)
	}

	s := NewStore()
	for _, entry := range entries {
		if _, ok := s.entries[entry.Key]; ok {
			return nil, fmt.Errorf("load %s: key %q appears twice", path, entry.Key)
		}
		s.entries[entry.Key] = entry
	}
	return s, nil
}

// keysLocked returns sorted keys. Caller must hold at least a read lock.
func (s *Store) keysLocked() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
