//go:build !sonic

package deltalog

import (
	"github.com/goccy/go-json"
)

var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
