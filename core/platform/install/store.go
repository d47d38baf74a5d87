package install

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

	installKeyPrefix = "install:"
	installIndexKey  = "install:index"

	orgTenant = "_org"
)

// RedisStore persists installations in Redis, keyed by (package, tenant).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed installation store.
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

// Create inserts a new installation. The SETNX on the (package, tenant)
// key is the uniqueness invariant; concurrent duplicate installers lose
// with ErrConflict.
func (s *RedisStore) Create(ctx context.Context, inst *Installation) error {
	if strings.TrimSpace(inst.PackageID) == "" {
		return errors.New("packageId required")
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	member := installMember(inst.PackageID, inst.TenantID)
	ok, err := s.client.SetNX(ctx, installKeyPrefix+member, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return s.client.SAdd(ctx, installIndexKey, member).Err()
}

// Save overwrites an existing installation record.
func (s *RedisStore) Save(ctx context.Context, inst *Installation) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	member := installMember(inst.PackageID, inst.TenantID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, installKeyPrefix+member, data, 0)
	pipe.SAdd(ctx, installIndexKey, member)
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the installation for a (package, tenant) pair.
func (s *RedisStore) Get(ctx context.Context, packageID, tenantID string) (*Installation, error) {
	member := installMember(packageID, tenantID)
	data, err := s.client.Get(ctx, installKeyPrefix+member).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var inst Installation
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("decode installation %s: %w", member, err)
	}
	return &inst, nil
}

// Delete removes a single installation.
func (s *RedisStore) Delete(ctx context.Context, packageID, tenantID string) error {
	member := installMember(packageID, tenantID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, installKeyPrefix+member)
	pipe.SRem(ctx, installIndexKey, member)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns all installations, ordered by (package, tenant).
func (s *RedisStore) List(ctx context.Context) ([]*Installation, error) {
	members, err := s.client.SMembers(ctx, installIndexKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	out := make([]*Installation, 0, len(members))
	for _, member := range members {
		inst, err := s.getMember(ctx, member)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// ListByPackage returns every installation of one package across tenants.
func (s *RedisStore) ListByPackage(ctx context.Context, packageID string) ([]*Installation, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Installation, 0, len(all))
	for _, inst := range all {
		if inst.PackageID == packageID {
			out = append(out, inst)
		}
	}
	return out, nil
}

// DeleteByPackage removes every installation of a package. Used by the
// catalog delete cascade: installations go first so a crash cannot leave
// orphans pointing at a missing package.
func (s *RedisStore) DeleteByPackage(ctx context.Context, packageID string) (int, error) {
	installs, err := s.ListByPackage(ctx, packageID)
	if err != nil {
		return 0, err
	}
	for _, inst := range installs {
		if err := s.Delete(ctx, inst.PackageID, inst.TenantID); err != nil {
			return 0, err
		}
	}
	return len(installs), nil
}

func (s *RedisStore) getMember(ctx context.Context, member string) (*Installation, error) {
	data, err := s.client.Get(ctx, installKeyPrefix+member).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var inst Installation
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("decode installation %s: %w", member, err)
	}
	return &inst, nil
}

func installMember(packageID, tenantID string) string {
	if tenantID == "" {
		tenantID = orgTenant
	}
	return packageID + ":" + tenantID
}
