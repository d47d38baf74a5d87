package integrations

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
	"github.com/apphub/apphub/core/infra/secrets"
)

const (
	defaultRedisURL  = "redis://localhost:6379"
	defaultOpTimeout = 2 * time.Second

	integrationKeyPrefix = "integration:"
	integrationIndexKey  = "integration:index"
)

// RedisStore persists platform integrations in Redis. Every read path
// masks secret-bearing config fields; the only unmasked exit is
// KeyForConsumption.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed integration store.
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

// List returns all integrations with masked config, ordered by id.
func (s *RedisStore) List(ctx context.Context) ([]View, error) {
	ids, err := s.client.SMembers(ctx, integrationIndexKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]View, 0, len(ids))
	for _, id := range ids {
		view, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// Get returns a single integration with masked config.
func (s *RedisStore) Get(ctx context.Context, integrationID string) (View, error) {
	raw, err := s.raw(ctx, integrationID)
	if err != nil {
		return View{}, err
	}
	return mask(raw), nil
}

// Update merges partialConfig into the stored config (shallow key-level
// merge: provided keys overwrite, including empty strings; omitted keys
// keep their prior value), optionally flips enabled, and records the
// actor. Last writer wins.
func (s *RedisStore) Update(ctx context.Context, integrationID string, partialConfig map[string]any, enabled *bool, updatedBy string) (View, error) {
	raw, err := s.raw(ctx, integrationID)
	if err != nil {
		return View{}, err
	}
	if raw.Config == nil {
		raw.Config = map[string]any{}
	}
	for key, value := range partialConfig {
		raw.Config[key] = value
	}
	if enabled != nil {
		raw.Enabled = *enabled
	}
	raw.UpdatedBy = strings.TrimSpace(updatedBy)
	raw.UpdatedAt = time.Now().Unix()
	if err := s.save(ctx, raw); err != nil {
		return View{}, err
	}
	return mask(raw), nil
}

// KeyForConsumption is the sole unmasked read path. It fails with
// ErrNotFound when the integration is missing, disabled, or keyless, so
// callers cannot distinguish an absent credential from a withheld one.
func (s *RedisStore) KeyForConsumption(ctx context.Context, integrationID string) (string, map[string]any, error) {
	raw, err := s.raw(ctx, integrationID)
	if err != nil {
		return "", nil, err
	}
	if !raw.Enabled {
		return "", nil, ErrNotFound
	}
	apiKey := secrets.APIKey(raw.Config)
	if apiKey == "" {
		return "", nil, ErrNotFound
	}
	return apiKey, raw.Config, nil
}

// CreateIfAbsent inserts a full integration record only when the id is
// new; existing records are left untouched. Used by seeding.
func (s *RedisStore) CreateIfAbsent(ctx context.Context, integration *Integration) (bool, error) {
	if strings.TrimSpace(integration.IntegrationID) == "" {
		return false, errors.New("integrationId required")
	}
	if integration.Config == nil {
		integration.Config = map[string]any{}
	}
	integration.UpdatedAt = time.Now().Unix()
	data, err := json.Marshal(integration)
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, integrationKey(integration.IntegrationID), data, 0).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, s.client.SAdd(ctx, integrationIndexKey, integration.IntegrationID).Err()
}

// RefreshMetadata updates display fields and grows usedByPackages without
// ever touching config or enabled. Used by re-seeding so operator secrets
// survive redeploys.
func (s *RedisStore) RefreshMetadata(ctx context.Context, integration *Integration) error {
	raw, err := s.raw(ctx, integration.IntegrationID)
	if err != nil {
		return err
	}
	raw.Name = integration.Name
	raw.Description = integration.Description
	raw.Icon = integration.Icon
	raw.Category = integration.Category
	raw.UsedByPackages = mergeUsedBy(raw.UsedByPackages, integration.UsedByPackages)
	return s.save(ctx, raw)
}

func (s *RedisStore) raw(ctx context.Context, integrationID string) (*Integration, error) {
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return nil, errors.New("integrationId required")
	}
	data, err := s.client.Get(ctx, integrationKey(integrationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var integration Integration
	if err := json.Unmarshal(data, &integration); err != nil {
		return nil, fmt.Errorf("decode integration %s: %w", integrationID, err)
	}
	return &integration, nil
}

func (s *RedisStore) save(ctx context.Context, integration *Integration) error {
	data, err := json.Marshal(integration)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, integrationKey(integration.IntegrationID), data, 0)
	pipe.SAdd(ctx, integrationIndexKey, integration.IntegrationID)
	_, err = pipe.Exec(ctx)
	return err
}

func mask(raw *Integration) View {
	masked := *raw
	masked.Config = secrets.MaskConfig(raw.Config)
	return View{
		Integration: masked,
		Configured:  secrets.Configured(raw.Config),
	}
}

func mergeUsedBy(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string{}, existing...)
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range incoming {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func integrationKey(id string) string {
	return integrationKeyPrefix + id
}
