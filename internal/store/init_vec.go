//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver.
	// The embedding column layout matches vec0's float32 blob format, so
	// builds with this tag can run vec queries against the same data.
	vec.Auto()
}
