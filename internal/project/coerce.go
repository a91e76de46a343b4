package project

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jinzhu/now"
	"github.com/spf13/cast"

	"github.com/xxxsen/apisync/internal/mapping"
)

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

func toText(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	default:
		return cast.ToString(t)
	}
}

// texts stringifies a resolved value, dropping empty elements.
func texts(v mapping.Value) []string {
	out := make([]string, 0, len(v.Values()))
	for _, elem := range v.Values() {
		if isEmpty(elem) {
			continue
		}
		s := toText(elem)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// scalarOrList writes a single value for scalars and a list otherwise.
func scalarOrList[T any](v mapping.Value, values []T) interface{} {
	if v.Kind == mapping.Scalar && len(values) == 1 {
		return values[0]
	}
	out := make([]interface{}, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}

// compactLayouts are basic-format ISO 8601 dates that jinzhu/now does not
// know. An eight digit value is a calendar date, never unix seconds.
var compactLayouts = []string{
	"20060102",
	"20060102T150405Z0700",
	"20060102T150405Z07:00",
	"20060102T150405",
	"20060102T1504",
}

// ParseTimestamp turns a remote date into unix seconds. Digit-only values
// other than compact dates are unix timestamps; anything else goes through
// the layouts known to jinzhu/now. Zone-less dates are read in local time.
func ParseTimestamp(v interface{}) (int64, error) {
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return 0, fmt.Errorf("empty date")
	}
	for _, layout := range compactLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Unix(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "-/:") {
		return int64(f), nil
	}
	t, err := now.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("unrecognised date %q", s)
	}
	return t.Unix(), nil
}

func parseInteger(v interface{}) (int64, error) {
	s := strings.TrimSpace(cast.ToString(v))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}

func parseCoordinate(v interface{}) (float64, error) {
	s := strings.TrimSpace(cast.ToString(v))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a coordinate", s)
	}
	return f, nil
}
