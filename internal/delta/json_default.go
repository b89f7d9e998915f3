//go:build !sonic

package delta

import (
	"bytes"

	"github.com/goccy/go-json"
)

var jsonUnmarshal = json.Unmarshal

// jsonUnmarshalNumbers decodes numbers as json.Number so that 64 bit
// statistics survive without a float round trip.
func jsonUnmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
