package job

import (
	"encoding/json"
	"strconv"
)

// Constraint keys read from Info by the compatibility check.
const (
	InfoAccountID    = "accountId"
	InfoStoreCountry = "storeCountry"
)

// Info is the free-form attribute map attached to a job. Keys other than
// the constraint keys are carried untouched.
type Info map[string]any

// Has reports whether key is present, whatever its value.
func (i Info) Has(key string) bool {
	_, ok := i[key]
	return ok
}

// Lookup returns the canonical string form of the value under key.
// Strings are returned unchanged and numbers are formatted without an
// exponent, so 12345 and "12345" compare equal. ok is false when the key
// is absent or holds any other type.
func (i Info) Lookup(key string) (string, bool) {
	v, present := i[key]
	if !present {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// Clone returns a shallow copy of the map.
func (i Info) Clone() Info {
	if i == nil {
		return nil
	}
	cp := make(Info, len(i))
	for k, v := range i {
		cp[k] = v
	}
	return cp
}
