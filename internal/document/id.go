package document

import (
	"encoding/json"
	"fmt"
)

// LooseID decodes a JSON string or number. Seed files and older clients
// send numeric ids.
type LooseID string

func (id *LooseID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = LooseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = LooseID(n.String())
	return nil
}
