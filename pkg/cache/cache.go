package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines the cache operations used by the bar loaders.
// Values are JSON encoded so every implementation round-trips typed structs.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
}

// Key joins a namespace and its parts into a cache key ("bars:7203:v1").
func Key(namespace string, parts ...interface{}) string {
	key := namespace
	for _, p := range parts {
		key = fmt.Sprintf("%s:%v", key, p)
	}
	return key
}

// Pattern returns a glob matching every key under namespace.
func Pattern(namespace string) string {
	return namespace + ":*"
}
