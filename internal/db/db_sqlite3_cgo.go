//go:build cgo && sqlite3_cgo

package db

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)

// fileDSN also sets the busy timeout through the DSN since mattn applies it
// to every new pooled connection.
func fileDSN(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc&_busy_timeout=5000", path)
}
