package views

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/opsync/internal/cache"
	"golang.org/x/sync/errgroup"
)

// DefaultCountConcurrency bounds concurrent count requests.
const DefaultCountConcurrency = 3

// Counter counts the records visible in one view of a table.
type Counter interface {
	CountView(ctx context.Context, table, viewID string) (int, error)
}

// CountOptions tunes [CountAll]. The zero value counts without caching.
type CountOptions struct {
	Table       string        // table holding the service's records; defaults to the tag
	Cache       cache.Cache   // optional
	TTL         time.Duration // lifetime of cached counts
	Concurrency int
	Logger      *log.Logger
}

// CountAll counts every view of tag, keyed by view name.
//
// Counts are fetched concurrently. Cache failures are logged and fall through to
// the counter. The first counter error cancels the remaining requests and is returned.
func CountAll(ctx context.Context, reg *Registry, tag ServiceTag, counter Counter, opts CountOptions) (map[string]int, error) {
	named := reg.ViewsFor(tag)
	counts := make(map[string]int, len(named))
	if len(named) == 0 {
		return counts, nil
	}

	if opts.Table == "" {
		opts.Table = string(tag)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultCountConcurrency
	}

	type result struct {
		name  string
		count int
	}
	results := make(chan result, len(named))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for name, id := range named {
		g.Go(func() error {
			n, err := countOne(gctx, counter, opts, tag, id)
			if err != nil {
				return fmt.Errorf("count view %q: %w", name, err)
			}
			results <- result{name: name, count: n}
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}

	for r := range results {
		counts[r.name] = r.count
	}
	return counts, nil
}

// CacheKey is the cache key of one view's count.
func CacheKey(tag ServiceTag, viewID string) string {
	return fmt.Sprintf("views:%s:%s:count", tag, viewID)
}

type cachedCount struct {
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetched_at"`
}

func countOne(ctx context.Context, counter Counter, opts CountOptions, tag ServiceTag, viewID string) (int, error) {
	key := CacheKey(tag, viewID)

	if opts.Cache != nil {
		if raw, ok, err := opts.Cache.Get(ctx, key); err != nil {
			opts.logf("cache read failed", "key", key, "err", err)
		} else if ok {
			var c cachedCount
			if err := json.Unmarshal(raw, &c); err == nil {
				return c.Count, nil
			}
		}
	}

	n, err := counter.CountView(ctx, opts.Table, viewID)
	if err != nil {
		return 0, err
	}

	if opts.Cache != nil {
		raw, _ := json.Marshal(cachedCount{Count: n, FetchedAt: time.Now().UTC()})
		if err := opts.Cache.Set(ctx, key, raw, opts.TTL); err != nil {
			opts.logf("cache write failed", "key", key, "err", err)
		}
	}
	return n, nil
}

func (o CountOptions) logf(msg string, kv ...any) {
	if o.Logger != nil {
		o.Logger.Warn(msg, kv...)
	}
}

// Invalidate drops the cached counts of every view of tag.
func Invalidate(ctx context.Context, reg *Registry, tag ServiceTag, c cache.Cache) error {
	if c == nil {
		return nil
	}
	for _, id := range reg.ViewsFor(tag) {
		if err := c.Delete(ctx, CacheKey(tag, id)); err != nil {
			return fmt.Errorf("invalidate %s: %w", tag, err)
		}
	}
	return nil
}
