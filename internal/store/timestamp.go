package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"evcal/internal/dateutil"
)

// timestampShape tags the encodings a persisted timestamp may arrive in.
// Only the decode step looks at the shape; everything past the store sees
// a time.Time.
type timestampShape int

const (
	shapeUnknown timestampShape = iota
	// "2025-05-10T10:00:00-07:00" or a wall-clock "2025-05-10T10:00:00"
	shapeString
	// 1746892800 or 1746892800.5
	shapeEpochSeconds
	// {"_seconds":1746892800,"_nanoseconds":0} or {"seconds":...,"nanoseconds":...}
	shapeSecondsWrapper
)

func (s timestampShape) String() string {
	switch s {
	case shapeString:
		return "string"
	case shapeEpochSeconds:
		return "epoch-seconds"
	case shapeSecondsWrapper:
		return "seconds-wrapper"
	default:
		return "unknown"
	}
}

func classifyTimestamp(raw []byte) timestampShape {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return shapeUnknown
	}
	switch c := raw[0]; {
	case c == '"':
		return shapeString
	case c == '{':
		return shapeSecondsWrapper
	case c == '-' || (c >= '0' && c <= '9'):
		return shapeEpochSeconds
	default:
		return shapeUnknown
	}
}

// secondsWrapper covers the serialized forms of document-database
// timestamps: underscore-prefixed (admin SDK JSON) and plain field names.
type secondsWrapper struct {
	UnderSeconds *int64 `json:"_seconds"`
	UnderNanos   *int64 `json:"_nanoseconds"`
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  *int64 `json:"nanoseconds"`
	Nanos        *int64 `json:"nanos"`
}

// Persisted instants must fall within years 0001 through 9999.
var (
	minEpochSeconds = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	maxEpochSeconds = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC).Unix()
)

func epochInstant(sec, nsec int64) (time.Time, error) {
	if sec < minEpochSeconds || sec > maxEpochSeconds {
		return time.Time{}, fmt.Errorf("timestamp: %d seconds out of range", sec)
	}
	t := time.Unix(sec, nsec).UTC()
	if y := t.Year(); y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("timestamp: year %d out of range", y)
	}
	return t, nil
}

func (w secondsWrapper) instant() (time.Time, error) {
	var sec, nsec int64
	switch {
	case w.UnderSeconds != nil:
		sec = *w.UnderSeconds
	case w.Seconds != nil:
		sec = *w.Seconds
	default:
		return time.Time{}, errors.New("timestamp object has no seconds field")
	}
	for _, n := range []*int64{w.UnderNanos, w.Nanoseconds, w.Nanos} {
		if n != nil {
			nsec = *n
			break
		}
	}
	return epochInstant(sec, nsec)
}

// decodeTimestamp normalizes any supported persisted shape to a time.Time
// in loc. Wall-clock strings without an offset are read in loc.
func decodeTimestamp(raw json.RawMessage, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	shape := classifyTimestamp(raw)
	switch shape {
	case shapeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		t, err := dateutil.ParseLocalDateTime(s, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %s: %w", shape, err)
		}
		return t.In(loc), nil

	case shapeEpochSeconds:
		f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %s: %w", shape, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) ||
			f < float64(minEpochSeconds) || f > float64(maxEpochSeconds) {
			return time.Time{}, fmt.Errorf("timestamp %s: %s out of range", shape, bytes.TrimSpace(raw))
		}
		sec := math.Floor(f)
		nsec := math.Round((f - sec) * 1e9)
		t, err := epochInstant(int64(sec), int64(nsec))
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil

	case shapeSecondsWrapper:
		var w secondsWrapper
		if err := json.Unmarshal(raw, &w); err != nil {
			return time.Time{}, fmt.Errorf("timestamp %s: %w", shape, err)
		}
		t, err := w.instant()
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil

	default:
		return time.Time{}, fmt.Errorf("timestamp: unsupported value %s", string(raw))
	}
}

// encodeTimestamp writes the canonical on-disk form.
func encodeTimestamp(t time.Time) json.RawMessage {
	b, _ := json.Marshal(t.Format(time.RFC3339Nano))
	return b
}
