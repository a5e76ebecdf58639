// FILE: logship/src/internal/cache/store.go
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lixenwraith/log"
)

// ErrEntryTooLarge signals an event whose serialized record exceeds the
// store's total capacity and can never be admitted.
var ErrEntryTooLarge = errors.New("event too large to cache")

// Entry is one persisted event awaiting redelivery. Each entry is a single
// self-describing JSON file on disk.
type Entry struct {
	ID       string          `json:"id"`
	Seq      int64           `json:"seq"`
	CachedAt time.Time       `json:"cached_at"`
	Payload  json.RawMessage `json:"payload"`

	size int64
	file string
}

// Size returns the entry's on-disk size in bytes.
func (e Entry) Size() int64 {
	return e.size
}

// Stats describes the store's current occupancy.
type Stats struct {
	Count        int     `json:"count"`
	SizeBytes    int64   `json:"size_bytes"`
	MaxSizeBytes int64   `json:"max_size_bytes"`
	UsagePercent float64 `json:"usage_percent"`
	Directory    string  `json:"directory"`
}

// Store is a size-bounded FIFO queue of events that failed delivery,
// persisted one file per entry. Mutations are serialized by the store
// mutex so size bookkeeping never races; scans read current disk state
// and may interleave with mutations.
type Store struct {
	dir     string
	maxSize int64
	logger  *log.Logger

	mu    sync.Mutex
	total int64
	seq   int64

	// Statistics
	droppedOversize atomic.Uint64
	evictedCount    atomic.Uint64
	corruptCount    atomic.Uint64
}

// Open creates the cache directory if needed and rebuilds the size
// accounting from the files already present.
func Open(dir string, maxSizeBytes int64, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		maxSize: maxSizeBytes,
		logger:  logger,
	}

	files, err := s.sortedFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, f := range files {
		info, err := os.Stat(filepath.Join(dir, f))
		if err != nil {
			continue
		}
		s.total += info.Size()
		if seq := seqFromName(f); seq > s.seq {
			s.seq = seq
		}
	}

	logger.Info("msg", "Cache store opened",
		"component", "cache",
		"directory", dir,
		"entries", len(files),
		"size_bytes", s.total,
		"max_size_bytes", maxSizeBytes)

	return s, nil
}

// Enqueue persists one event envelope, evicting oldest entries until it
// fits. Returns ErrEntryTooLarge when the record alone exceeds capacity.
func (s *Store) Enqueue(payload []byte) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	if now := time.Now().UnixNano(); now > s.seq {
		s.seq = now
	}

	entry := Entry{
		ID:       uuid.NewString(),
		Seq:      s.seq,
		CachedAt: time.Now().UTC(),
		Payload:  payload,
	}

	record, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal cache record: %w", err)
	}
	entry.size = int64(len(record))
	entry.file = fileName(entry.Seq, entry.ID)

	if entry.size > s.maxSize {
		s.droppedOversize.Add(1)
		s.logger.Warn("msg", "Event too large to cache, dropping",
			"component", "cache",
			"record_bytes", entry.size,
			"max_size_bytes", s.maxSize)
		return Entry{}, ErrEntryTooLarge
	}

	for s.total+entry.size > s.maxSize {
		if !s.evictOldestLocked() {
			break
		}
	}

	path := filepath.Join(s.dir, entry.file)
	if err := os.WriteFile(path, record, 0o644); err != nil {
		return Entry{}, fmt.Errorf("failed to persist cache record: %w", err)
	}
	s.total += entry.size

	s.logger.Debug("msg", "Event cached",
		"component", "cache",
		"id", entry.ID,
		"record_bytes", entry.size,
		"total_bytes", s.total)

	return entry, nil
}

// Scan yields live entries oldest-first. Every call re-reads current disk
// state, so the sequence is restartable. Unreadable records are removed
// and the scan continues.
func (s *Store) Scan() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		files, err := s.sortedFiles()
		if err != nil {
			s.logger.Error("msg", "Failed to read cache directory",
				"component", "cache",
				"error", err)
			return
		}

		for _, f := range files {
			entry, err := s.readEntry(f)
			if err != nil {
				// Corrupt record poisons nothing; treat as evicted
				s.corruptCount.Add(1)
				s.logger.Warn("msg", "Removing unreadable cache record",
					"component", "cache",
					"file", f,
					"error", err)
				s.removeFile(f)
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// Remove deletes the entry with the given ID if present. Idempotent.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.sortedFiles()
	if err != nil {
		return false
	}
	for _, f := range files {
		if strings.HasSuffix(f, "-"+id+".json") {
			return s.removeFileLocked(f)
		}
	}
	return false
}

// Clear deletes every entry, releasing each one's size as it goes.
// Returns how many entries were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.sortedFiles()
	if err != nil {
		return 0
	}

	removed := 0
	for _, f := range files {
		// Each removal adjusts the accounting, so entries that survive a
		// failed unlink stay counted
		if s.removeFileLocked(f) {
			removed++
		}
	}

	s.logger.Info("msg", "Cache cleared",
		"component", "cache",
		"removed", removed)
	return removed
}

// Count returns the number of live entries.
func (s *Store) Count() int {
	files, err := s.sortedFiles()
	if err != nil {
		return 0
	}
	return len(files)
}

// GetStats returns the store's occupancy statistics.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	total := s.total
	s.mu.Unlock()

	usage := 0.0
	if s.maxSize > 0 {
		usage = float64(total) / float64(s.maxSize) * 100
	}

	return Stats{
		Count:        s.Count(),
		SizeBytes:    total,
		MaxSizeBytes: s.maxSize,
		UsagePercent: usage,
		Directory:    s.dir,
	}
}

// Directory returns the cache directory path.
func (s *Store) Directory() string {
	return s.dir
}

// evictOldestLocked removes the entry with the smallest sequence. Caller
// holds the mutex. Returns false when the store is empty.
func (s *Store) evictOldestLocked() bool {
	files, err := s.sortedFiles()
	if err != nil || len(files) == 0 {
		return false
	}

	if s.removeFileLocked(files[0]) {
		s.evictedCount.Add(1)
		s.logger.Debug("msg", "Evicted oldest cache entry",
			"component", "cache",
			"file", files[0],
			"total_bytes", s.total)
		return true
	}
	return false
}

func (s *Store) removeFile(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeFileLocked(name)
}

func (s *Store) removeFileLocked(name string) bool {
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		return false
	}
	s.total -= info.Size()
	if s.total < 0 {
		s.total = 0
	}
	return true
}

// sortedFiles lists record files oldest-first. Names embed a zero-padded
// sequence, so lexical order is insertion order.
func (s *Store) sortedFiles() ([]string, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		files = append(files, d.Name())
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) readEntry(name string) (Entry, error) {
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("corrupt record: %w", err)
	}
	if entry.ID == "" || len(entry.Payload) == 0 {
		return Entry{}, fmt.Errorf("corrupt record: missing id or payload")
	}

	entry.size = info.Size()
	entry.file = name
	return entry, nil
}

func fileName(seq int64, id string) string {
	return fmt.Sprintf("%020d-%s.json", seq, id)
}

func seqFromName(name string) int64 {
	base := strings.TrimSuffix(name, ".json")
	idx := strings.IndexByte(base, '-')
	if idx <= 0 {
		return 0
	}
	var seq int64
	if _, err := fmt.Sscanf(base[:idx], "%d", &seq); err != nil {
		return 0
	}
	return seq
}

// DroppedOversize reports events dropped because they could never fit.
func (s *Store) DroppedOversize() uint64 {
	return s.droppedOversize.Load()
}

// Evicted reports entries removed to enforce the size bound.
func (s *Store) Evicted() uint64 {
	return s.evictedCount.Load()
}

// CorruptRemoved reports unreadable records removed during scans.
func (s *Store) CorruptRemoved() uint64 {
	return s.corruptCount.Load()
}
