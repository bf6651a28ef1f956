// Package cachestore is a short-TTL cache for fetched platform data,
// primarily account profiles. One post evaluation scores many commenters;
// caching profiles bounds the number of connector calls the evaluation spends
// from the shared platform quota.
package cachestore

import (
	"context"
	"encoding/json"
)

type CacheStore interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, name, key string) (string, bool, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

// GetJSON unmarshals a cached value into out, returning whether there was a
// cache hit.
func GetJSON(ctx context.Context, cs CacheStore, name, key string, out any) (bool, error) {
	raw, ok, err := cs.Get(ctx, name, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		// a corrupt entry behaves like a miss
		_ = cs.Purge(ctx, name, key)
		return false, nil
	}
	return true, nil
}

func SetJSON(ctx context.Context, cs CacheStore, name, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return cs.Set(ctx, name, key, string(raw))
}
