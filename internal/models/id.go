package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// ID is a 64-bit identifier. It is serialized as a JSON string because
// values above 2^53 lose precision as native JSON numbers.
type ID uint64

// String renders the decimal form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return id == 0
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler, accepting both quoted and
// bare numeric forms.
func (id *ID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse id %q: %w", raw, err)
	}
	*id = ID(value)
	return nil
}

// Value implements driver.Valuer.
func (id ID) Value() (driver.Value, error) {
	return int64(id), nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*id = 0
	case int64:
		*id = ID(v)
	case []byte:
		return id.scanString(string(v))
	case string:
		return id.scanString(v)
	default:
		return fmt.Errorf("unsupported id source type %T", src)
	}
	return nil
}

func (id *ID) scanString(raw string) error {
	if raw == "" {
		*id = 0
		return nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("scan id %q: %w", raw, err)
	}
	*id = ID(value)
	return nil
}

// ParseID converts the decimal string form into an ID.
func ParseID(raw string) (ID, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", raw, err)
	}
	return ID(value), nil
}
