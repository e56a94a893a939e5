package commsutil

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// PeekString reads one string field from a JSON payload without decoding it.
func PeekString(data []byte, path string) string {
	return gjson.GetBytes(data, path).String()
}
