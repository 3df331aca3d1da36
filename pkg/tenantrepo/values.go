package tenantrepo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Row value helpers. pgx hands back driver types (e.g. [16]byte for uuid, []any for arrays);
// MemStore hands back whatever was stored. Mappers use these to read either.

func UUIDValue(v any) (uuid.UUID, error) {
	switch x := v.(type) {
	case nil:
		return uuid.Nil, nil
	case uuid.UUID:
		return x, nil
	case *uuid.UUID:
		if x == nil {
			return uuid.Nil, nil
		}
		return *x, nil
	case [16]byte:
		return uuid.UUID(x), nil
	case []byte:
		if len(x) == 16 {
			return uuid.FromBytes(x)
		}
		return uuid.ParseBytes(x)
	case string:
		if x == "" {
			return uuid.Nil, nil
		}
		return uuid.Parse(x)
	default:
		return uuid.Nil, fmt.Errorf("unsupported uuid value %T", v)
	}
}

func StringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func Int64Value(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unsupported integer value %T", v)
	}
}

func BoolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func TimeValue(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case *time.Time:
		if x != nil {
			return *x
		}
	}
	return time.Time{}
}

// NullableTime maps SQL NULL to nil.
func NullableTime(v any) *time.Time {
	t := TimeValue(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

// NullableUUID maps SQL NULL and uuid.Nil to nil, which is how optional references are stored.
func NullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func TimeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func StringSliceValue(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), x...), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported array element %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported string array value %T", v)
	}
}
