package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

// CachedGeocoder fronts another geocoder with a Redis cache. Layer centroids
// repeat across re-scrapes, so answers are cached under the quantized point,
// and "no match" is cached like any other answer. Every cache failure degrades
// to the inner geocoder: the cache may slow a lookup down, it must never
// break one.
type CachedGeocoder struct {
	inner  Geocoder
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedGeocoder(inner Geocoder, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	return &CachedGeocoder{inner: inner, client: client, ttl: ttl, logger: logger}
}

// cacheKey quantizes to 5 decimal places, roughly one meter, so re-scraped
// layers with jittered coordinates still hit.
func cacheKey(pt orb.Point) string {
	return fmt.Sprintf("geocode:%.5f,%.5f", pt[0], pt[1])
}

// ReverseGeocode implements Geocoder.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, pt orb.Point) (*Result, error) {
	key := cacheKey(pt)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached *Result
		if unmarshalErr := json.Unmarshal(data, &cached); unmarshalErr == nil {
			return cached, nil
		}
		c.logger.WarnContext(ctx, "geocode cache entry corrupt, refetching", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "geocode cache read failed", "key", key, "error", err)
	}

	result, err := c.inner.ReverseGeocode(ctx, pt)
	if err != nil {
		return nil, err
	}

	// A nil result marshals to "null" and round-trips back to nil, so
	// negative answers are cached with the same TTL.
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "geocode cache write failed", "key", key, "error", setErr)
		}
	}
	return result, nil
}
