package postgres

import "encoding/json"

// jsonOrNil returns raw as a JSONB argument, wrapping non-JSON gateway
// payloads (form bodies) as a JSON string.
func jsonOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return string(raw)
	}
	wrapped, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return string(wrapped)
}
