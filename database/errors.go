package database

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrPendingExists     = errors.New("pending recovery request exists")
	ErrUnsupportedDBType = errors.New("unsupported database type")
)
