package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// AsTimestamp interprets a stored field as a timestamp. It accepts
// *timestamppb.Timestamp, time.Time, RFC 3339 strings and
// {"seconds": .., "nanos": ..} maps as produced by JSON round-trips.
func AsTimestamp(v any) (*timestamppb.Timestamp, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *timestamppb.Timestamp:
		return t, nil
	case time.Time:
		return timestamppb.New(t), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", t, err)
		}
		return timestamppb.New(parsed), nil
	case map[string]any:
		secs, err := AsInt64(t["seconds"])
		if err != nil {
			return nil, fmt.Errorf("timestamp seconds: %w", err)
		}
		nanos, err := AsInt64(t["nanos"])
		if err != nil {
			return nil, fmt.Errorf("timestamp nanos: %w", err)
		}
		return &timestamppb.Timestamp{Seconds: secs, Nanos: int32(nanos)}, nil
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// AsInt64 interprets a stored numeric field. nil reads as 0.
func AsInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("non-integral number %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
}

// AsBool interprets a stored boolean field. nil reads as false.
func AsBool(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	default:
		return false, fmt.Errorf("unsupported bool type %T", v)
	}
}

// Compare orders two timestamps; nil sorts first.
func Compare(a, b *timestamppb.Timestamp) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.GetSeconds() != b.GetSeconds():
		if a.GetSeconds() < b.GetSeconds() {
			return -1
		}
		return 1
	case a.GetNanos() != b.GetNanos():
		if a.GetNanos() < b.GetNanos() {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether p sorts strictly before (ts, id).
func (p Position) Before(ts *timestamppb.Timestamp, id string) bool {
	if c := Compare(ts, p.UpdatedAt); c != 0 {
		return c > 0
	}
	return id > p.ID
}
