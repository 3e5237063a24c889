package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/siherrmann/graphrag/helper"
)

// Metadata represents a JSON object stored as JSONB in PostgreSQL.
// It is also the payload type of extracted entities, so anything that is
// not a JSON object fails to unmarshal into it.
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	return m.Marshal()
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes. A nil map is written as {}.
func (m Metadata) Marshal() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Unmarshal converts JSON bytes, a JSON string or Metadata to Metadata
func (m *Metadata) Unmarshal(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case Metadata:
		*m = v
		return nil
	case string:
		return m.unmarshalBytes([]byte(v))
	case []byte:
		return m.unmarshalBytes(v)
	default:
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
}

func (m *Metadata) unmarshalBytes(b []byte) error {
	out := Metadata{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	if out == nil {
		out = Metadata{}
	}
	*m = out
	return nil
}

// Merge returns a copy of m with every key of other set on top.
// Keys of m missing in other are kept.
func (m Metadata) Merge(other Metadata) Metadata {
	merged := make(Metadata, len(m)+len(other))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}
