package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "overseer/pkg/domain"
)

const cacheKeyPrefix = "idmap:"

// CachedResolver decorates a Resolver with a Redis lookaside cache. Identity
// mappings change rarely, so cached entries live for the configured TTL and
// cache failures degrade to direct resolution.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{next: next, client: client, ttl: ttl, logger: logger}
}

func (r *CachedResolver) MapOne(ctx context.Context, tool string, toolSpecificID string) (id.SubjectID, error) {
	key := cacheKeyPrefix + tool + ":" + toolSpecificID
	cached, err := r.client.Get(ctx, key).Result()
	if err == nil && cached != "" {
		return id.SubjectID(cached), nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn("identity cache read failed", "error", err)
	}

	subject, err := r.next.MapOne(ctx, tool, toolSpecificID)
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, key, subject.String(), r.ttl).Err(); err != nil {
		r.logger.Warn("identity cache write failed", "error", err)
	}
	return subject, nil
}

// MapMany resolves cached IDs locally and only sends the misses upstream.
func (r *CachedResolver) MapMany(ctx context.Context, tool string, toolSpecificIDs []string) ([]id.SubjectID, error) {
	seen := make(map[id.SubjectID]struct{}, len(toolSpecificIDs))
	var subjects []id.SubjectID
	var misses []string

	for _, toolSpecificID := range toolSpecificIDs {
		key := cacheKeyPrefix + tool + ":" + toolSpecificID
		cached, err := r.client.Get(ctx, key).Result()
		if err != nil || cached == "" {
			if err != nil && !errors.Is(err, redis.Nil) {
				r.logger.Warn("identity cache read failed", "error", err)
			}
			misses = append(misses, toolSpecificID)
			continue
		}
		subject := id.SubjectID(cached)
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		subjects = append(subjects, subject)
	}

	if len(misses) == 0 {
		return subjects, nil
	}

	// MapMany dedupes across subjects, so misses are resolved one by one to
	// learn each individual mapping for the cache.
	for _, toolSpecificID := range misses {
		subject, err := r.next.MapOne(ctx, tool, toolSpecificID)
		if err != nil {
			return nil, err
		}
		key := cacheKeyPrefix + tool + ":" + toolSpecificID
		if err := r.client.Set(ctx, key, subject.String(), r.ttl).Err(); err != nil {
			r.logger.Warn("identity cache write failed", "error", err)
		}
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		subjects = append(subjects, subject)
	}
	return subjects, nil
}
