//go:build !sqlite_cgo

package storecheck

import (
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver used to read the store.
const DriverName = "sqlite"
