package hootsql

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"

	"github.com/hootenanny/jobtrack/src/internal/errors"
)

// Tags is a string->string map stored as a JSONB object, the shape of the tag columns on jobs
// and datasets.
type Tags map[string]string

var _ sql.Scanner = (*Tags)(nil)
var _ driver.Valuer = Tags(nil)

// Scan implements database/sql.Scanner.  Values that are not JSON strings are kept as their raw
// JSON text rather than failing the whole row, so a hand-edited column stays readable.
func (t *Tags) Scan(src any) error {
	var content []byte
	switch x := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		content = x
	case string:
		content = []byte(x)
	default:
		return errors.Errorf("Tags scan source is %T, not []byte", src)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return errors.Wrap(err, "unmarshal tags into map[string]RawMessage")
	}
	result := make(Tags, len(raw))
	for k, rawValue := range raw {
		var v string
		if err := json.Unmarshal(rawValue, &v); err != nil {
			v = string(rawValue)
		}
		result[k] = v
	}
	*t = result
	return nil
}

// Value implements database/sql/driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if len(t) == 0 {
		return []byte(`{}`), nil
	}
	content, err := json.Marshal(map[string]string(t))
	if err != nil {
		return nil, errors.Wrap(err, "marshal tags to JSON")
	}
	return content, nil
}

// Get returns the value of key and whether it was set to a non-empty value.
func (t Tags) Get(key string) (string, bool) {
	v, ok := t[key]
	return v, ok && v != ""
}
