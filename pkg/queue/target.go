package queue

import (
	"time"

	"github.com/google/uuid"
)

// ResolveLocation picks the location a target writes to.
// An explicit document id wins, then a collection (explicit or the default one)
// with a newly generated id, then the full document path.
func ResolveLocation(t Target, defaultCollection string) (Location, error) {
	collection := t.Collection
	if collection == "" {
		collection = defaultCollection
	}

	switch {
	case t.DocumentID != "":
		if collection == "" {
			return Location{}, ErrNoTarget
		}
		return Location{Collection: collection, ID: t.DocumentID}, nil
	case collection != "":
		return Location{Collection: collection, ID: uuid.NewString()}, nil
	case t.Path != "":
		return ParseLocation(t.Path)
	}

	return Location{}, ErrNoTarget
}

// BuildData returns a copy of the payload data with every server timestamp field set to now
func BuildData(p Payload, now time.Time) map[string]any {
	data := make(map[string]any, len(p.Data)+len(p.ServerTimestampFields))
	for k, v := range p.Data {
		data[k] = v
	}
	for _, field := range p.ServerTimestampFields {
		if field != "" {
			data[field] = now
		}
	}
	return data
}
