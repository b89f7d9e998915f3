//go:build sonic

package delta

import (
	"bytes"

	"github.com/bytedance/sonic"
)

var jsonUnmarshal = sonic.Unmarshal

func jsonUnmarshalNumbers(data []byte, v any) error {
	dec := sonic.ConfigDefault.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
