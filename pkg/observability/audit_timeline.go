// Package observability — in-memory audit timeline.
//
// The timeline keeps audit entries in memory, queryable by session or
// subject for incident review. It is a development/debugging aid; the
// gateway's Handshake, DoGet and DoPut handlers do not append to it.
package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AuditEntryType categorizes audit entries.
type AuditEntryType string

const (
	EntryTypeHandshake AuditEntryType = "HANDSHAKE"
	EntryTypeDoGet     AuditEntryType = "DO_GET"
	EntryTypeDoPut     AuditEntryType = "DO_PUT"
	EntryTypeDenied    AuditEntryType = "DENIED"
)

// AuditEntry is a single auditable gateway event.
type AuditEntry struct {
	EntryID     string                 `json:"entry_id"`
	EntryType   AuditEntryType         `json:"entry_type"`
	SessionID   string                 `json:"session_id"`
	Subject     string                 `json:"subject"`
	Timestamp   time.Time              `json:"timestamp"`
	Summary     string                 `json:"summary"`
	ContentHash string                 `json:"content_hash"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// AuditQuery filters timeline entries.
type AuditQuery struct {
	SessionID string          `json:"session_id,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	EntryType *AuditEntryType `json:"entry_type,omitempty"`
	After     *time.Time      `json:"after,omitempty"`
	Before    *time.Time      `json:"before,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

// AuditTimeline collects and queries audit events.
type AuditTimeline struct {
	mu      sync.RWMutex
	entries []AuditEntry
	index   map[string][]int // sessionID → entry indices
	seq     int64
	clock   func() time.Time
}

// NewAuditTimeline creates a new timeline.
func NewAuditTimeline() *AuditTimeline {
	return &AuditTimeline{
		entries: make([]AuditEntry, 0),
		index:   make(map[string][]int),
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (t *AuditTimeline) WithClock(clock func() time.Time) *AuditTimeline {
	t.clock = clock
	return t
}

// Record adds an entry to the timeline.
func (t *AuditTimeline) Record(entry AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("audit-%d", t.seq)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock()
	}

	data, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	h := sha256.Sum256(data)
	entry.ContentHash = "sha256:" + hex.EncodeToString(h[:])

	idx := len(t.entries)
	t.entries = append(t.entries, entry)

	if entry.SessionID != "" {
		t.index[entry.SessionID] = append(t.index[entry.SessionID], idx)
	}

	return nil
}

// Query retrieves entries matching the query.
func (t *AuditTimeline) Query(q AuditQuery) []AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []AuditEntry

	if q.SessionID != "" {
		indices, ok := t.index[q.SessionID]
		if !ok {
			return nil
		}
		for _, i := range indices {
			candidates = append(candidates, t.entries[i])
		}
	} else {
		candidates = make([]AuditEntry, len(t.entries))
		copy(candidates, t.entries)
	}

	var results []AuditEntry
	for _, e := range candidates {
		if q.Subject != "" && e.Subject != q.Subject {
			continue
		}
		if q.EntryType != nil && e.EntryType != *q.EntryType {
			continue
		}
		if q.After != nil && e.Timestamp.Before(*q.After) {
			continue
		}
		if q.Before != nil && e.Timestamp.After(*q.Before) {
			continue
		}
		results = append(results, e)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results
}

// Count returns total entries.
func (t *AuditTimeline) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
