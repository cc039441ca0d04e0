package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Time layouts produced by the supported drivers and JSON functions
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Coerce converts a value read from a driver or a decoded JSON aggregate
// into the Go type of vt: string, int64, float64, bool, time.Time (UTC),
// canonical UUID string or decoded JSON.
func Coerce(v any, vt schema.ValueType) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch vt {
	case schema.TypeString:
		return toString(v)
	case schema.TypeInt:
		return toInt(v)
	case schema.TypeFloat:
		return toFloat(v)
	case schema.TypeBool:
		return toBool(v)
	case schema.TypeTime:
		return toTime(v)
	case schema.TypeUUID:
		return toUUID(v)
	case schema.TypeJSON:
		return toJSONValue(v)
	default:
		return normalize(v), nil
	}
}

// normalize turns driver byte slices into strings and JSON numbers into
// int64 or float64
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

func toString(v any) (any, error) {
	switch val := normalize(v).(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case uuid.UUID:
		return val.String(), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to string", v)
	}
}

func toInt(v any) (any, error) {
	switch val := normalize(v).(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case uint:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return int64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("cannot convert %v to integer", val)
		}
		return int64(val), nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to integer", val)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func toFloat(v any) (any, error) {
	switch val := normalize(v).(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to float", val)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to float", v)
	}
}

func toBool(v any) (any, error) {
	switch val := normalize(v).(type) {
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case int:
		return val != 0, nil
	case float64:
		return val != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true":
			return true, nil
		case "0", "f", "false":
			return false, nil
		}
		return nil, fmt.Errorf("cannot convert %q to bool", val)
	default:
		return nil, fmt.Errorf("cannot convert %T to bool", v)
	}
}

func toTime(v any) (any, error) {
	switch val := normalize(v).(type) {
	case time.Time:
		return val.UTC(), nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("cannot parse time %q", val)
	default:
		return nil, fmt.Errorf("cannot convert %T to time", v)
	}
}

func toUUID(v any) (any, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val.String(), nil
	case [16]byte:
		return uuid.UUID(val).String(), nil
	case []byte:
		if len(val) == 16 {
			id, err := uuid.FromBytes(val)
			if err != nil {
				return nil, err
			}
			return id.String(), nil
		}
		return toUUID(string(val))
	case string:
		id, err := uuid.Parse(val)
		if err != nil {
			return nil, fmt.Errorf("cannot parse uuid %q: %w", val, err)
		}
		return id.String(), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to uuid", v)
	}
}

func toJSONValue(v any) (any, error) {
	switch val := v.(type) {
	case []byte:
		return decodeJSON(val)
	case string:
		return decodeJSON([]byte(val))
	default:
		return normalizeDecoded(val), nil
	}
}

// decodeJSON decodes data keeping numbers as json.Number until coercion
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("cannot decode JSON: %w", err)
	}
	return normalizeDecoded(out), nil
}

// normalizeDecoded replaces json.Number throughout a decoded value
func normalizeDecoded(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, e := range val {
			val[k] = normalizeDecoded(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = normalizeDecoded(e)
		}
		return val
	default:
		return normalize(v)
	}
}

// maybeJSON decodes driver values holding a JSON object or array. Anything
// else is returned unchanged.
func maybeJSON(v any) (any, error) {
	var data []byte
	switch val := v.(type) {
	case []byte:
		data = val
	case string:
		data = []byte(val)
	default:
		return v, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[' && !bytes.Equal(trimmed, []byte("null"))) {
		return v, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("cannot decode JSON aggregate: %w", err)
	}
	return out, nil
}
