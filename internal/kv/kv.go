// Package kv is the key-value contract the registry and message log are
// written against. Keys are opaque strings and values are JSON documents.
//
// No backend offers transactions across keys. Callers that write a record
// and then an index entry pointing at it must tolerate a reader observing
// one write without the other.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON decodes the value under key into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// GetList reads a list of ids. A missing key is an empty list.
func GetList(ctx context.Context, s Store, key string) ([]string, error) {
	var ids []string
	err := GetJSON(ctx, s, key, &ids)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

// AppendList does a read-modify-write append of id to the list at key and
// keeps at most limit trailing entries when limit > 0. Concurrent appends to
// the same key can lose updates.
func AppendList(ctx context.Context, s Store, key, id string, limit int) ([]string, error) {
	ids, err := GetList(ctx, s, key)
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	if err := SetJSON(ctx, s, key, ids); err != nil {
		return nil, err
	}
	return ids, nil
}
