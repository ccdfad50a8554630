package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"conclave/pkg/logx"
)

// Defaults mirror the spec's recognized configuration.
const (
	DefaultSoftMaxEntries = 1000
	DefaultMaxAge         = 7 * 24 * time.Hour
	DefaultAutoFlush      = 5 * time.Second
	DefaultContextLimit   = 10
	DefaultSummaryChars   = 200
)

// Config parameterizes a Store's retention and flush behavior.
type Config struct {
	Path           string
	SoftMaxEntries int
	MaxAge         time.Duration
	AutoFlush      time.Duration
	ContextLimit   int
	SummaryChars   int
}

// DefaultConfig returns the spec's documented memory defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SoftMaxEntries: DefaultSoftMaxEntries,
		MaxAge:         DefaultMaxAge,
		AutoFlush:      DefaultAutoFlush,
		ContextLimit:   DefaultContextLimit,
		SummaryChars:   DefaultSummaryChars,
	}
}

// Store is the on-disk JSON-backed memory store. All operations are
// serialized behind mu; ids are assigned under the same lock so concurrent
// stores from multiple agents each produce a distinct entry.
type Store struct {
	mu     sync.Mutex
	cfg    Config
	data   map[string][]Entry
	logger *logx.Logger

	flushTimer *time.Timer
	dirty      bool

	now func() time.Time
}

// New constructs a Store from cfg. Call Initialize before first use.
func New(cfg Config, logger *logx.Logger) *Store {
	if cfg.SoftMaxEntries <= 0 {
		cfg.SoftMaxEntries = DefaultSoftMaxEntries
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.AutoFlush <= 0 {
		cfg.AutoFlush = DefaultAutoFlush
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = DefaultContextLimit
	}
	if cfg.SummaryChars <= 0 {
		cfg.SummaryChars = DefaultSummaryChars
	}
	if logger == nil {
		logger = logx.NewLogger("memory")
	}
	return &Store{
		cfg:    cfg,
		data:   make(map[string][]Entry),
		logger: logger,
		now:    time.Now,
	}
}

// persistedShape is the on-disk JSON layout: agent id -> ordered entries.
type persistedShape map[string][]Entry

// Initialize loads cfg.Path if it exists and parses; otherwise it leaves the
// in-memory map empty and defers file creation to the first flush. A
// malformed file is logged and treated as empty. Never returns an error.
func (s *Store) Initialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("memory: could not read store file %s: %v", s.cfg.Path, err)
		}
		return
	}

	var shape persistedShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		s.logger.Warn("memory: store file %s is malformed, starting empty: %v", s.cfg.Path, err)
		return
	}
	s.data = shape
}

// Store creates a MemoryEntry with a freshly generated id and the current
// timestamp, appends it to agentID's list, and schedules a debounced flush.
func (s *Store) Store(agentID string, typ EntryType, content any, tags []string) Entry {
	s.mu.Lock()
	entry := Entry{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Timestamp: s.now(),
		Type:      typ,
		Content:   content,
		Tags:      append([]string(nil), tags...),
	}
	s.data[agentID] = append(s.data[agentID], entry)
	s.evictLocked()
	s.dirty = true
	s.scheduleFlushLocked()
	s.mu.Unlock()
	return entry
}

// scheduleFlushLocked arms a one-shot debounce timer that calls Flush after
// cfg.AutoFlush. Must be called with s.mu held.
func (s *Store) scheduleFlushLocked() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = time.AfterFunc(s.cfg.AutoFlush, func() {
		if err := s.Flush(); err != nil {
			s.logger.Warn("memory: debounced flush failed: %v", err)
		}
	})
}

// GetContext returns up to cfg.ContextLimit summaries for entries tagged
// with mode, newest first.
func (s *Store) GetContext(mode string) []ContextSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []Entry
	for _, entries := range s.data {
		for _, e := range entries {
			if hasTag(e.Tags, mode) {
				matches = append(matches, e)
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Timestamp.After(matches[j].Timestamp) })

	if len(matches) > s.cfg.ContextLimit {
		matches = matches[:s.cfg.ContextLimit]
	}

	summaries := make([]ContextSummary, 0, len(matches))
	for _, e := range matches {
		summaries = append(summaries, ContextSummary{Type: e.Type, Summary: s.summarize(e.Content)})
	}
	return summaries
}

// stringify renders content as text: the string itself, or a stable JSON
// serialization for structured values. Used wherever the full, untruncated
// content is required (Search); summarize truncates this for display.
func stringify(content any) string {
	if str, ok := content.(string); ok {
		return str
	}
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprintf("%v", content)
	}
	return string(b)
}

// summarize stringifies content and truncates to cfg.SummaryChars with an
// ellipsis suffix, for GetContext's display summaries.
func (s *Store) summarize(content any) string {
	text := stringify(content)
	if len(text) <= s.cfg.SummaryChars {
		return text
	}
	return text[:s.cfg.SummaryChars] + "..."
}

// Search performs a case-insensitive substring match against the full,
// untruncated stringified content of every entry (a separate contract from
// GetContext's truncated summaries); when tags is non-empty, requires
// intersection with the entry's tag set. An empty query matches nothing.
// Results are returned in insertion order (ascending store timestamp).
func (s *Store) Search(query string, tags []string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if query == "" {
		return nil
	}
	needle := strings.ToLower(query)

	var results []Entry
	for _, agentID := range sortedAgentIDs(s.data) {
		for _, e := range s.data[agentID] {
			if len(tags) > 0 && !tagsIntersect(e.Tags, tags) {
				continue
			}
			if strings.Contains(strings.ToLower(stringify(e.Content)), needle) {
				results = append(results, e)
			}
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Timestamp.Before(results[j].Timestamp) })
	return results
}

func sortedAgentIDs(data map[string][]Entry) []string {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Flush writes the in-memory map to disk as a single JSON document. On
// failure it logs and retains the in-memory state so the next flush retries.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if !s.dirty {
		return nil
	}
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal store: %w", err)
	}

	if dir := filepath.Dir(s.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Warn("memory: could not create store directory %s: %v", dir, err)
			return err
		}
	}

	if err := os.WriteFile(s.cfg.Path, b, 0o644); err != nil {
		s.logger.Warn("memory: flush to %s failed, retaining in-memory state: %v", s.cfg.Path, err)
		return err
	}
	s.dirty = false
	return nil
}

// evictLocked removes entries older than cfg.MaxAge; if the total entry
// count still exceeds cfg.SoftMaxEntries, it removes the oldest remaining
// entries first until under the cap. Must be called with s.mu held.
func (s *Store) evictLocked() {
	cutoff := s.now().Add(-s.cfg.MaxAge)
	total := 0
	for agentID, entries := range s.data {
		kept := entries[:0:0]
		for _, e := range entries {
			if !e.Timestamp.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		s.data[agentID] = kept
		total += len(kept)
	}

	if total <= s.cfg.SoftMaxEntries {
		return
	}

	type ref struct {
		agentID string
		index   int
		entry   Entry
	}
	var all []ref
	for agentID, entries := range s.data {
		for i, e := range entries {
			all = append(all, ref{agentID, i, e})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].entry.Timestamp.Before(all[j].entry.Timestamp) })

	excess := total - s.cfg.SoftMaxEntries
	remove := make(map[string]map[string]bool)
	for i := 0; i < excess && i < len(all); i++ {
		r := all[i]
		if remove[r.agentID] == nil {
			remove[r.agentID] = make(map[string]bool)
		}
		remove[r.agentID][r.entry.ID] = true
	}
	for agentID, ids := range remove {
		entries := s.data[agentID]
		kept := entries[:0:0]
		for _, e := range entries {
			if !ids[e.ID] {
				kept = append(kept, e)
			}
		}
		s.data[agentID] = kept
	}
}
