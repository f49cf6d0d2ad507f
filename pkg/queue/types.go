package queue

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueCollection is the default name of the collection that holds queue entries
const DefaultQueueCollection = "write_queue"

// DefaultBatchSize is the page size used for reclamation and delivery queries
const DefaultBatchSize = 100

// DefaultLeaseDuration is how long a claim stays valid before the entry may be reclaimed
const DefaultLeaseDuration = time.Minute

// DefaultStoreTimeout bounds a terminal storage update after delivery
const DefaultStoreTimeout = 10 * time.Second

// State represents the lifecycle state of a queue entry
type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateDelivered  State = "DELIVERED"
	StateFailed     State = "FAILED"
)

// Valid reports whether s is one of the known states
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateDelivered, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

// CleanupPolicy decides the fate of an entry once it was delivered (or skipped as stale)
type CleanupPolicy string

const (
	// CleanupDelete removes the entry record after a successful delivery
	CleanupDelete CleanupPolicy = "DELETE"
	// CleanupKeep retains the entry with state DELIVERED for audit
	CleanupKeep CleanupPolicy = "KEEP"
)

// Valid checks if the policy is one of the supported values
func (p CleanupPolicy) Valid() bool {
	return p == CleanupDelete || p == CleanupKeep
}

// Target describes where a deferred write is applied.
// DocumentID takes precedence over Collection, which takes precedence over Path.
type Target struct {
	// Path is a full document path such as "users/42" or "users/42/devices/7".
	Path string `json:"path,omitempty"`
	// Collection is the collection to write into. Falls back to the configured default.
	Collection string `json:"collection,omitempty"`
	// DocumentID is the explicit id of the document inside Collection.
	DocumentID string `json:"document_id,omitempty"`
}

// IsZero reports whether no part of the target was set
func (t Target) IsZero() bool {
	return t.Path == "" && t.Collection == "" && t.DocumentID == ""
}

// Location is a resolved write target: a collection and a document id inside it.
type Location struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// String returns the document path of the location
func (l Location) String() string {
	return l.Collection + "/" + l.ID
}

// ParseLocation splits a document path into collection and id.
// The path must consist of an even, non-zero number of non-empty segments.
func ParseLocation(path string) (Location, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return Location{}, ErrInvalidPath
	}
	for _, s := range segments {
		if s == "" {
			return Location{}, ErrInvalidPath
		}
	}
	last := len(segments) - 1
	return Location{
		Collection: strings.Join(segments[:last], "/"),
		ID:         segments[last],
	}, nil
}

// Payload is the data written at delivery time
type Payload struct {
	Data map[string]any `json:"data"`
	// ServerTimestampFields lists the fields set to the delivery time, not the enqueue time.
	ServerTimestampFields []string `json:"server_timestamp_fields,omitempty"`
}

// Entry represents one deferred write tracked by the queue
type Entry struct {
	ID                 uuid.UUID     `json:"id"`
	State              State         `json:"state"`
	DeliverTime        time.Time     `json:"deliver_time"`
	InvalidAfterTime   *time.Time    `json:"invalid_after_time,omitempty"`
	StalenessThreshold time.Duration `json:"staleness_threshold,omitempty"`
	Target             Target        `json:"target"`
	Payload            Payload       `json:"payload"`
	Merge              bool          `json:"merge"`
	Attempts           int           `json:"attempts"`
	Timeouts           int           `json:"timeouts"`
	LeaseExpireTime    *time.Time    `json:"lease_expire_time,omitempty"`
	LastTimeoutTime    *time.Time    `json:"last_timeout_time,omitempty"`
	StartTime          *time.Time    `json:"start_time,omitempty"`
	EndTime            *time.Time    `json:"end_time,omitempty"`
	UpdateTime         *time.Time    `json:"update_time,omitempty"`
	Error              *string       `json:"error,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Clone returns a deep copy of the entry so storage can hand out values safely
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.InvalidAfterTime = cloneTime(e.InvalidAfterTime)
	c.LeaseExpireTime = cloneTime(e.LeaseExpireTime)
	c.LastTimeoutTime = cloneTime(e.LastTimeoutTime)
	c.StartTime = cloneTime(e.StartTime)
	c.EndTime = cloneTime(e.EndTime)
	c.UpdateTime = cloneTime(e.UpdateTime)
	if e.Error != nil {
		msg := *e.Error
		c.Error = &msg
	}
	if e.Payload.Data != nil {
		c.Payload.Data = make(map[string]any, len(e.Payload.Data))
		for k, v := range e.Payload.Data {
			c.Payload.Data[k] = v
		}
	}
	if e.Payload.ServerTimestampFields != nil {
		c.Payload.ServerTimestampFields = append([]string(nil), e.Payload.ServerTimestampFields...)
	}
	return &c
}

// IsStale reports whether the delivery window of the entry has passed.
// defaultThreshold applies when the entry carries no threshold of its own.
func (e *Entry) IsStale(now time.Time, defaultThreshold time.Duration) bool {
	if e.InvalidAfterTime != nil && e.InvalidAfterTime.Before(now) {
		return true
	}
	threshold := e.StalenessThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return threshold > 0 && e.DeliverTime.Add(threshold).Before(now)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
