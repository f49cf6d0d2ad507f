package logger

import (
	"log/slog"
	"strconv"
)

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// EntryID records the queue entry identifier under the key "entry_id".
// If id is nil, it returns an empty Attr.
func EntryID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("entry_id", id)
}

// State records an entry state under the key "state".
func State(state string) slog.Attr {
	return slog.String("state", state)
}

// Attempts records how often an entry was claimed.
func Attempts(n int) slog.Attr {
	return slog.Int("attempts", n)
}

// Timeouts records how often the lease of an entry expired.
func Timeouts(n int) slog.Attr {
	return slog.Int("timeouts", n)
}

// Location records a write target path under the key "location".
func Location(path string) slog.Attr {
	return slog.String("location", path)
}

// Count records a number of items under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
