package lake

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"datacat/internal/domain"
)

// Default parse layouts for temporal strings when the variable carries no
// explicit format.
var (
	dateLayouts     = []string{"2006-01-02", "2006/01/02", "02.01.2006"}
	dateTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}
	timeLayouts     = []string{"15:04:05", "15:04"}
)

// Convert coerces one cell to the column's lake representation. Category
// columns first translate vocabulary labels through the code map; values
// not in the map (numeric keys from lookup-table sources) fall through to
// the integer parse. Temporal columns honor the declared format.
func (c Column) Convert(v any) (driver.Value, error) {
	if c.Type == domain.TypeCategory && len(c.Codes) > 0 {
		if s, ok := textValue(v); ok {
			if code, ok := c.Codes[s]; ok {
				if code < math.MinInt16 || code > math.MaxInt16 {
					return nil, fmt.Errorf("category code %d out of range", code)
				}
				return int16(code), nil
			}
		}
	}
	return ConvertValue(v, c.Type, c.Format)
}

func textValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// ConvertValue coerces a source value into the Go representation the
// DuckDB appender expects for the canonical type. A nil input stays nil.
// Failures are hard errors; graceful degradation for category columns is
// the pivot transform's concern, not the lake's.
func ConvertValue(v any, t domain.ValueType, format *string) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch t {
	case domain.TypeInteger:
		return toInt64(v)
	case domain.TypeFloat:
		return toFloat64(v)
	case domain.TypeCategory:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("category code %d out of range", n)
		}
		return int16(n), nil
	case domain.TypeDate:
		return toTime(v, format, dateLayouts)
	case domain.TypeDateTime:
		return toTime(v, format, dateTimeLayouts)
	case domain.TypeTime:
		return toTime(v, format, timeLayouts)
	default: // string, multiresponse
		return toString(v), nil
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer value %d overflows", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("cannot store %v in an integer column", n)
		}
		return int64(n), nil
	case float32:
		return toInt64(float64(n))
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as integer", n)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as float", n)
		}
		return parsed, nil
	}
	if i, err := toInt64(v); err == nil {
		return float64(i), nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

func toTime(v any, format *string, layouts []string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if format != nil && *format != "" {
			parsed, err := time.Parse(*format, s)
			if err != nil {
				return time.Time{}, fmt.Errorf("cannot parse %q with layout %q", s, *format)
			}
			return parsed, nil
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a temporal value", s)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to a temporal value", v)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
