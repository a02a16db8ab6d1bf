//go:build sqlite_cgo

package storecheck

import (
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver used to read the store.
const DriverName = "sqlite3"
