package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/siherrmann/syllabus/helper"
)

// Metadata is an equality filter over chunk metadata fields, e.g. Metadata{"grade": 7}.
// It is stored as JSONB in PostgreSQL.
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	b, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes
func (m Metadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal converts JSON bytes or Metadata to Metadata
func (m *Metadata) Unmarshal(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}

	if s, ok := value.(Metadata); ok {
		*m = Metadata(s)
		return nil
	}

	b, err := asBytes(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, m)
}

// normalized returns the filter with every value passed through a JSON round trip,
// so 7 and 7.0 compare equal to what a decoded document holds.
func (m Metadata) normalized() (map[string]interface{}, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Value implements the driver.Valuer interface for database storage
func (c ChunkMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (c *ChunkMetadata) Scan(value interface{}) error {
	if value == nil {
		*c = ChunkMetadata{}
		return nil
	}

	b, err := asBytes(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, c)
}

// AsMetadata returns the metadata as a generic field map.
func (c ChunkMetadata) AsMetadata() (Metadata, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, helper.NewError("marshal chunk metadata", err)
	}
	m := Metadata{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, helper.NewError("unmarshal chunk metadata", err)
	}
	return m, nil
}

// Matches reports whether every field of filter equals the corresponding metadata field.
// An empty filter matches everything; unknown fields never match.
func (c ChunkMetadata) Matches(filter Metadata) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}

	fields, err := c.AsMetadata()
	if err != nil {
		return false, err
	}
	want, err := filter.normalized()
	if err != nil {
		return false, helper.NewError("normalize filter", err)
	}

	for key, value := range want {
		got, ok := fields[key]
		if !ok || !reflect.DeepEqual(got, value) {
			return false, nil
		}
	}
	return true, nil
}

func asBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
}
