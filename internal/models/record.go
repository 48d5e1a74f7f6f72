package models

import (
	"slices"
	"time"
)

// RecordKind tags the four status-bearing entity kinds.
type RecordKind string

const (
	KindJigRequest        RecordKind = "jig_request"
	KindSampleRequest     RecordKind = "sample_request"
	KindProductionRequest RecordKind = "production_request"
	KindQualityInspection RecordKind = "quality_inspection"
)

// Collection names in the document store.
const (
	CollectionJigRequests        = "jigRequests"
	CollectionSampleRequests     = "sampleRequests"
	CollectionProductionRequests = "productionRequests"
	CollectionQualityInspections = "qualityInspections"
	CollectionNotifications      = "notifications"
	CollectionCounters           = "counters"
	CollectionMasterData         = "masterData"
)

// Collection returns the document collection holding records of this kind.
func (k RecordKind) Collection() string {
	switch k {
	case KindJigRequest:
		return CollectionJigRequests
	case KindSampleRequest:
		return CollectionSampleRequests
	case KindProductionRequest:
		return CollectionProductionRequests
	case KindQualityInspection:
		return CollectionQualityInspections
	}
	return ""
}

// NotificationType returns the notification category raised by changes to this kind.
func (k RecordKind) NotificationType() NotificationType {
	switch k {
	case KindJigRequest:
		return NotificationTypeJig
	case KindSampleRequest:
		return NotificationTypeSample
	case KindProductionRequest:
		return NotificationTypeWork
	case KindQualityInspection:
		return NotificationTypeQuality
	}
	return ""
}

// NewRecord returns an empty record of the given kind, ready for decoding.
func NewRecord(kind RecordKind) (Record, bool) {
	switch kind {
	case KindJigRequest:
		return &JigRequest{}, true
	case KindSampleRequest:
		return &SampleRequest{}, true
	case KindProductionRequest:
		return &ProductionRequest{}, true
	case KindQualityInspection:
		return &QualityInspection{}, true
	}
	return nil, false
}

// Label is the human readable kind name used in notification messages.
func (k RecordKind) Label() string {
	switch k {
	case KindJigRequest:
		return "Jig request"
	case KindSampleRequest:
		return "Sample request"
	case KindProductionRequest:
		return "Production request"
	case KindQualityInspection:
		return "Quality inspection"
	}
	return string(k)
}

// HistoryEntry is one status transition in a record's audit trail.
type HistoryEntry struct {
	Status string    `json:"status"`
	Date   time.Time `json:"date"`
	User   string    `json:"user"`
	Reason string    `json:"reason,omitempty"`
}

// Comment is a thread entry attached to a record.
type Comment struct {
	ID     string    `json:"id"`
	User   string    `json:"user"`
	Date   time.Time `json:"date"`
	Text   string    `json:"text"`
	ReadBy []string  `json:"readBy"`
}

// Record is implemented by every status-bearing entity.
type Record interface {
	Kind() RecordKind
	RecordID() string
	CurrentStatus() string
	// SetStatus assigns a status from the kind's closed set.
	SetStatus(status string) error
	HistoryLog() []HistoryEntry
	AppendHistory(entry HistoryEntry)
	CommentThread() []Comment
	AppendComment(comment Comment)
	MarkCommentsRead(userID string) bool
	Clone() Record
}

// Tracked carries the append-only history and comment thread shared by all records.
type Tracked struct {
	History  []HistoryEntry `json:"history"`
	Comments []Comment      `json:"comments"`
}

// HistoryLog returns the history entries in insertion order.
func (t *Tracked) HistoryLog() []HistoryEntry { return t.History }

// AppendHistory appends a transition.
func (t *Tracked) AppendHistory(entry HistoryEntry) { t.History = append(t.History, entry) }

// CommentThread returns the comments in insertion order.
func (t *Tracked) CommentThread() []Comment { return t.Comments }

// AppendComment appends a comment.
func (t *Tracked) AppendComment(comment Comment) { t.Comments = append(t.Comments, comment) }

// MarkCommentsRead adds userID to readBy of every comment and reports whether anything changed.
func (t *Tracked) MarkCommentsRead(userID string) bool {
	changed := false
	for i := range t.Comments {
		if !slices.Contains(t.Comments[i].ReadBy, userID) {
			t.Comments[i].ReadBy = append(t.Comments[i].ReadBy, userID)
			changed = true
		}
	}
	return changed
}

func (t Tracked) clone() Tracked {
	out := Tracked{
		History:  slices.Clone(t.History),
		Comments: make([]Comment, len(t.Comments)),
	}
	for i, c := range t.Comments {
		c.ReadBy = slices.Clone(c.ReadBy)
		out.Comments[i] = c
	}
	if t.Comments == nil {
		out.Comments = nil
	}
	return out
}
