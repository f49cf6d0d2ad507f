package mongo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

// Field names of a queue entry document
const (
	fieldID              = "_id"
	fieldState           = "state"
	fieldDeliverTime     = "deliver_time"
	fieldAttempts        = "attempts"
	fieldTimeouts        = "timeouts"
	fieldLeaseExpireTime = "lease_expire_time"
	fieldLastTimeoutTime = "last_timeout_time"
	fieldStartTime       = "start_time"
	fieldEndTime         = "end_time"
	fieldUpdateTime      = "update_time"
	fieldError           = "error"
)

// entryDocument is the stored form of a queue.Entry.
// Durations are kept in milliseconds and the id as its string form.
type entryDocument struct {
	ID                    string     `bson:"_id"`
	State                 string     `bson:"state"`
	DeliverTime           time.Time  `bson:"deliver_time"`
	InvalidAfterTime      *time.Time `bson:"invalid_after_time,omitempty"`
	StalenessThresholdMS  int64      `bson:"staleness_threshold_ms,omitempty"`
	TargetPath            string     `bson:"target_path,omitempty"`
	TargetCollection      string     `bson:"target_collection,omitempty"`
	TargetDocumentID      string     `bson:"target_document_id,omitempty"`
	Data                  bson.M     `bson:"data"`
	ServerTimestampFields []string   `bson:"server_timestamp_fields,omitempty"`
	Merge                 bool       `bson:"merge"`
	Attempts              int        `bson:"attempts"`
	Timeouts              int        `bson:"timeouts"`
	LeaseExpireTime       *time.Time `bson:"lease_expire_time,omitempty"`
	LastTimeoutTime       *time.Time `bson:"last_timeout_time,omitempty"`
	StartTime             *time.Time `bson:"start_time,omitempty"`
	EndTime               *time.Time `bson:"end_time,omitempty"`
	UpdateTime            *time.Time `bson:"update_time,omitempty"`
	Error                 *string    `bson:"error,omitempty"`
	CreatedAt             time.Time  `bson:"created_at"`
}

func toDocument(e *queue.Entry) entryDocument {
	data := bson.M{}
	for k, v := range e.Payload.Data {
		data[k] = v
	}

	return entryDocument{
		ID:                    e.ID.String(),
		State:                 string(e.State),
		DeliverTime:           e.DeliverTime,
		InvalidAfterTime:      e.InvalidAfterTime,
		StalenessThresholdMS:  e.StalenessThreshold.Milliseconds(),
		TargetPath:            e.Target.Path,
		TargetCollection:      e.Target.Collection,
		TargetDocumentID:      e.Target.DocumentID,
		Data:                  data,
		ServerTimestampFields: e.Payload.ServerTimestampFields,
		Merge:                 e.Merge,
		Attempts:              e.Attempts,
		Timeouts:              e.Timeouts,
		LeaseExpireTime:       e.LeaseExpireTime,
		LastTimeoutTime:       e.LastTimeoutTime,
		StartTime:             e.StartTime,
		EndTime:               e.EndTime,
		UpdateTime:            e.UpdateTime,
		Error:                 e.Error,
		CreatedAt:             e.CreatedAt,
	}
}

func (d entryDocument) toEntry() (*queue.Entry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, errors.Join(ErrInvalidEntryDocument, fmt.Errorf("id %q: %w", d.ID, err))
	}

	state := queue.State(d.State)
	if !state.Valid() {
		return nil, errors.Join(ErrInvalidEntryDocument, fmt.Errorf("entry %s: unknown state %q", d.ID, d.State))
	}

	data := make(map[string]any, len(d.Data))
	for k, v := range d.Data {
		data[k] = v
	}

	return &queue.Entry{
		ID:                 id,
		State:              state,
		DeliverTime:        d.DeliverTime,
		InvalidAfterTime:   d.InvalidAfterTime,
		StalenessThreshold: time.Duration(d.StalenessThresholdMS) * time.Millisecond,
		Target: queue.Target{
			Path:       d.TargetPath,
			Collection: d.TargetCollection,
			DocumentID: d.TargetDocumentID,
		},
		Payload: queue.Payload{
			Data:                  data,
			ServerTimestampFields: d.ServerTimestampFields,
		},
		Merge:           d.Merge,
		Attempts:        d.Attempts,
		Timeouts:        d.Timeouts,
		LeaseExpireTime: d.LeaseExpireTime,
		LastTimeoutTime: d.LastTimeoutTime,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		UpdateTime:      d.UpdateTime,
		Error:           d.Error,
		CreatedAt:       d.CreatedAt,
	}, nil
}

// stateFilter matches the entry only while it is in the state event requires
func stateFilter(id uuid.UUID, event queue.Event) bson.M {
	return bson.M{fieldID: id.String(), fieldState: string(event.From())}
}

// claimFilter matches the entry only while the claim that made attempt still holds it
func claimFilter(id uuid.UUID, event queue.Event, attempt int) bson.M {
	filter := stateFilter(id, event)
	filter[fieldAttempts] = attempt
	return filter
}

// rejectedDocument is a stored document that does not decode into a queue entry
type rejectedDocument struct {
	id  bson.RawValue
	err error
}

// decodeEntries splits raw documents into entries and the documents that failed to decode
func decodeEntries(raws []bson.Raw) ([]*queue.Entry, []rejectedDocument) {
	entries := make([]*queue.Entry, 0, len(raws))
	var rejected []rejectedDocument

	for _, raw := range raws {
		var doc entryDocument
		err := bson.Unmarshal(raw, &doc)
		var entry *queue.Entry
		if err == nil {
			entry, err = doc.toEntry()
		}
		if err != nil {
			if !errors.Is(err, ErrInvalidEntryDocument) {
				err = errors.Join(ErrInvalidEntryDocument, err)
			}
			rejected = append(rejected, rejectedDocument{id: raw.Lookup(fieldID), err: err})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rejected
}

func claimUpdate(now time.Time, lease time.Duration) bson.M {
	return bson.M{
		"$set": bson.M{
			fieldState:           string(queue.EventClaim.To()),
			fieldStartTime:       now,
			fieldLeaseExpireTime: now.Add(lease),
			fieldUpdateTime:      now,
		},
		"$inc": bson.M{fieldAttempts: 1},
	}
}

func resetUpdate(now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			fieldState:           string(queue.EventTimeout.To()),
			fieldLastTimeoutTime: now,
			fieldUpdateTime:      now,
		},
		"$inc":   bson.M{fieldTimeouts: 1},
		"$unset": bson.M{fieldLeaseExpireTime: ""},
	}
}

func finishUpdate(event queue.Event, now time.Time, errorMsg *string) bson.M {
	set := bson.M{
		fieldState:      string(event.To()),
		fieldEndTime:    now,
		fieldUpdateTime: now,
	}
	if errorMsg != nil {
		set[fieldError] = *errorMsg
	}
	return bson.M{
		"$set":   set,
		"$unset": bson.M{fieldLeaseExpireTime: ""},
	}
}
