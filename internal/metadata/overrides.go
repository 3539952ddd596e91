package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseOverrides converts the loosely-typed object supplied by the form layer
// into an override layer. Values of the wrong type are dropped and reported;
// everything that parses is kept. Unknown keys with string values become
// extended custom pairs. System-authored fields are rejected.
func ParseOverrides(raw map[string]any) (*Fields, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var errs []error
	f := &Fields{}

	for key, val := range raw {
		if val == nil {
			continue
		}
		switch key {
		case "title":
			f.Title, errs = asString(key, val, errs)
		case "description":
			f.Description, errs = asString(key, val, errs)
		case "copyright":
			f.Copyright, errs = asString(key, val, errs)
		case "creator", "author", "artist":
			f.Creator, errs = asString(key, val, errs)
		case "credit":
			f.Credit, errs = asString(key, val, errs)
		case "license":
			f.License, errs = asString(key, val, errs)
		case "rightsStatement", "rights":
			f.RightsStatement, errs = asString(key, val, errs)
		case "usageTerms":
			f.UsageTerms, errs = asString(key, val, errs)
		case "colorSpace":
			var s string
			s, errs = asString(key, val, errs)
			f.ColorSpace = ColorSpace(s)
		case "density":
			f.Density, errs = asInt(key, val, errs)
		case "orientation":
			f.Orientation, errs = asInt(key, val, errs)
		case "keywords":
			f.Keywords, errs = asKeywords(key, val, errs)
		case "software", "userComment":
			errs = append(errs, invalid("overrides", key, "system-authored field cannot be overridden"))
		case "extended", "custom":
			m, ok := val.(map[string]any)
			if !ok {
				errs = append(errs, invalid("overrides", key, "expected object, got %T", val))
				continue
			}
			for k, v := range m {
				var s string
				s, errs = asString(k, v, errs)
				if s != "" {
					setExtended(f, k, s)
				}
			}
		default:
			s, ok := val.(string)
			if !ok {
				errs = append(errs, invalid("overrides", key, "unknown field with non-string value %T", val))
				continue
			}
			setExtended(f, key, s)
		}
	}
	return f, errors.Join(errs...)
}

func setExtended(f *Fields, k, v string) {
	if f.Extended == nil {
		f.Extended = make(map[string]string)
	}
	f.Extended[k] = v
}

func asString(key string, v any, errs []error) (string, []error) {
	switch t := v.(type) {
	case string:
		return t, errs
	case json.Number:
		return t.String(), errs
	case fmt.Stringer:
		return t.String(), errs
	default:
		return "", append(errs, invalid("overrides", key, "expected string, got %T", v))
	}
}

func asInt(key string, v any, errs []error) (int, []error) {
	switch t := v.(type) {
	case int:
		return t, errs
	case int64:
		return int(t), errs
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, append(errs, invalid("overrides", key, "expected integer, got %v", t))
		}
		return int(t), errs
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, append(errs, invalid("overrides", key, "expected integer, got %q", t.String()))
		}
		return int(n), errs
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, errs
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, append(errs, invalid("overrides", key, "expected integer, got %q", t))
		}
		return n, errs
	default:
		return 0, append(errs, invalid("overrides", key, "expected integer, got %T", v))
	}
}

func asKeywords(key string, v any, errs []error) ([]string, []error) {
	switch t := v.(type) {
	case string:
		return NormalizeKeywords(strings.Split(t, ",")), errs
	case []string:
		return NormalizeKeywords(t), errs
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				errs = append(errs, invalid("overrides", fmt.Sprintf("%s[%d]", key, i), "expected string, got %T", item))
				continue
			}
			out = append(out, s)
		}
		return NormalizeKeywords(out), errs
	default:
		return nil, append(errs, invalid("overrides", key, "expected list or comma-separated string, got %T", v))
	}
}
