// Package db defines a persistent backend for the bonding engine.
package db

import (
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db/iface"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db/kv"
)

// Database defines the necessary methods for the bonding engine backend
// which may be implemented by any key-value or relational database in
// practice. The canonical implementation is the BoltDB store in the kv
// subpackage.
type Database = iface.Database

// NewDB initializes a new DB at the directory path specified.
func NewDB(dirPath string, cfg *kv.Config) (Database, error) {
	return kv.NewKVStore(dirPath, cfg)
}
