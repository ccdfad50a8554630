// Package memory implements the persistent, tag-searchable agent memory
// store described in spec.md §4.D.
package memory

import "time"

// EntryType classifies a MemoryEntry's content.
type EntryType string

const (
	TypeKnowledge EntryType = "knowledge"
	TypeResult    EntryType = "result"
	TypeError     EntryType = "error"
	TypeContext   EntryType = "context"
)

// Entry is a single, immutable record written by an agent. Content is
// heterogeneous: a plain string or any JSON-serializable structured value.
type Entry struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
	Type      EntryType `json:"type"`
	Content   any       `json:"content"`
	Tags      []string  `json:"tags"`
}

// ContextSummary is one row of the context a mode sees: the entry's type
// plus a truncated, stable-serialized rendering of its content.
type ContextSummary struct {
	Type    EntryType `json:"type"`
	Summary string    `json:"summary"`
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func tagsIntersect(entryTags, query []string) bool {
	for _, q := range query {
		if hasTag(entryTags, q) {
			return true
		}
	}
	return false
}
