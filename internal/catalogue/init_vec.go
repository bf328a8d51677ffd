//go:build sqlite_vec && cgo

package catalogue

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers the sqlite-vec extension against every mattn/go-sqlite3
	// connection, enabling the vec0 virtual table and vec_distance_cosine.
	vec.Auto()
}
