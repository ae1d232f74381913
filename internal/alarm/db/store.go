// Package db provides the record store backends: namespaced key/value blobs
// with last-write-wins semantics and no transactions.
package db

import (
	"context"
	"errors"
)

type Namespace string

const (
	Alarms    Namespace = "alarms"
	Codes     Namespace = "codes"
	Ringtones Namespace = "ringtones"
)

var ErrNotFound = errors.New("record not found")

type Store interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, error)
	Put(ctx context.Context, ns Namespace, key string, value []byte) error
	Delete(ctx context.Context, ns Namespace, key string) error
	List(ctx context.Context, ns Namespace) ([][]byte, error)
	Close() error
}
