package kvstore

import "context"

// Store is durable string storage keyed by name. A missing key is reported
// with ok == false and a nil error; errors are reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
