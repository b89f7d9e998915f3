//go:build sonic

package deltalog

import (
	"github.com/bytedance/sonic"
)

var jsonMarshal = sonic.Marshal
var jsonUnmarshal = sonic.Unmarshal
