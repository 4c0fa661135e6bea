package guest

import "encoding/json"

// StoredEntry is the shape held in the guest slot. Stored JSON is never
// trusted: decoding tolerates missing keys and wrongly-typed values, and
// keeps whatever could be coerced to a string. Invariants such as the
// status enumeration are enforced at migration time, not here.
type StoredEntry struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Image     string `json:"image,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// UnmarshalJSON decodes a stored element without assuming its shape.
// Non-object elements and non-string fields decay to zero values.
func (e *StoredEntry) UnmarshalJSON(data []byte) error {
	*e = StoredEntry{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}

	e.ID = stringField(fields, "id")
	e.Name = stringField(fields, "name")
	e.Platform = stringField(fields, "platform")
	e.Image = stringField(fields, "image")
	e.Status = stringField(fields, "status")
	e.CreatedAt = stringField(fields, "created_at")
	return nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}
