package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apphub/apphub/core/infra/redisutil"
)

const (
	defaultRedisURL  = "redis://localhost:6379"
	defaultOpTimeout = 2 * time.Second

	packageKeyPrefix = "pkg:"
	packageIndexKey  = "pkg:index"
)

// RedisStore persists the package catalog in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed catalog store from a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Create inserts a new package. The storage-layer SETNX on the package key
// is the uniqueness invariant; concurrent duplicate writers lose with
// ErrConflict.
func (s *RedisStore) Create(ctx context.Context, pkg *Package) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	now := time.Now().Unix()
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	data, err := json.Marshal(pkg)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, packageKey(pkg.PackageID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return s.client.SAdd(ctx, packageIndexKey, pkg.PackageID).Err()
}

// Save overwrites an existing package record.
func (s *RedisStore) Save(ctx context.Context, pkg *Package) error {
	if strings.TrimSpace(pkg.PackageID) == "" {
		return errors.New("packageId required")
	}
	pkg.UpdatedAt = time.Now().Unix()
	data, err := json.Marshal(pkg)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, packageKey(pkg.PackageID), data, 0)
	pipe.SAdd(ctx, packageIndexKey, pkg.PackageID)
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns a single package by id.
func (s *RedisStore) Get(ctx context.Context, packageID string) (*Package, error) {
	packageID = strings.TrimSpace(packageID)
	if packageID == "" {
		return nil, errors.New("packageId required")
	}
	data, err := s.client.Get(ctx, packageKey(packageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("decode package %s: %w", packageID, err)
	}
	return &pkg, nil
}

// List returns available packages matching the filter, ordered by
// (type, name).
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*Package, error) {
	ids, err := s.client.SMembers(ctx, packageIndexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Package, 0, len(ids))
	for _, id := range ids {
		pkg, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if filter.matches(pkg) {
			out = append(out, pkg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Delete removes a package record. Builtin protection and the
// installations-first cascade live in the caller.
func (s *RedisStore) Delete(ctx context.Context, packageID string) error {
	packageID = strings.TrimSpace(packageID)
	if packageID == "" {
		return errors.New("packageId required")
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, packageKey(packageID))
	pipe.SRem(ctx, packageIndexKey, packageID)
	_, err := pipe.Exec(ctx)
	return err
}

func packageKey(id string) string {
	return packageKeyPrefix + id
}
