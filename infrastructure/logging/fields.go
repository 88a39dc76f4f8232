package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for cache server logging.

// Key adds the storage key of an artifact object.
func Key(key string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("key", key)
	}
}

// RecordID adds the index record id of an artifact.
func RecordID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("record_id", id)
	}
}

// StorePath adds a store path field.
func StorePath(path string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("store_path", path)
	}
}

// NarSize adds the uncompressed artifact size.
func NarSize(size uint64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("nar_size", int64(size)) // nolint:gosec
	}
}

// BackendName adds the storage backend name.
func BackendName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("backend", name)
	}
}

// RequestID adds a request id field.
func RequestID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("request_id", id)
	}
}

// Method adds an HTTP method field.
func Method(method string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("method", method)
	}
}

// Path adds an HTTP path field.
func Path(path string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("path", path)
	}
}

// Status adds an HTTP status code field.
func Status(status int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("status", status)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
