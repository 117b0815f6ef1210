// Package valkey backs ports.CacheService with a Valkey server.
package valkey

import (
	"context"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/Hogigo/Bus2Hike/internal/pkg/metrics"
)

// Cache stores opaque values under namespaced keys such as
// "stops:discover:<lon>:<lat>:<range>".
type Cache struct {
	client valkey.Client
}

// New connects to addr. name is reported to the server as the client name.
func New(addr, name string) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		ClientName:  name,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey %s: %w", addr, err)
	}
	return &Cache{client: client}, nil
}

// Get returns the value at key. A missing key is an error (valkey.IsValkeyNil)
// and is counted as a miss; other failures are not counted.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	switch {
	case valkey.IsValkeyNil(err):
		metrics.CacheMisses.WithLabelValues(family(key)).Inc()
		return nil, err
	case err != nil:
		return nil, err
	}
	metrics.CacheHits.WithLabelValues(family(key)).Inc()
	return b, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	set := c.client.B().Set().Key(key).Value(valkey.BinaryString(value))
	if ttlSeconds <= 0 {
		return c.client.Do(ctx, set.Build()).Error()
	}
	return c.client.Do(ctx, set.ExSeconds(int64(ttlSeconds)).Build()).Error()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Ping is used by the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

func (c *Cache) Close() { c.client.Close() }

// family keeps the first two key segments for the metrics label.
func family(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		if j := strings.IndexByte(key[i+1:], ':'); j >= 0 {
			return key[:i+1+j]
		}
	}
	return key
}
