package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RecentTitles remembers the last few blog titles generated for each site so
// the next post for the same site can steer away from them.
type RecentTitles struct {
	rdb    redis.UniversalClient
	prefix string
	keep   int
}

// NewRecentTitles creates the per-site title history.
func NewRecentTitles(rdb redis.UniversalClient, prefix string, keep int) *RecentTitles {
	if keep < 1 {
		keep = 5
	}
	return &RecentTitles{rdb: rdb, prefix: prefix, keep: keep}
}

func (r *RecentTitles) key(siteID string) string {
	return r.prefix + ":recent:" + siteID
}

// Recent returns the newest titles for a site, newest first.
func (r *RecentTitles) Recent(ctx context.Context, siteID string) ([]string, error) {
	titles, err := r.rdb.LRange(ctx, r.key(siteID), 0, int64(r.keep-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent titles: %w", err)
	}
	return titles, nil
}

// Push records a new title and drops the oldest beyond the cap.
func (r *RecentTitles) Push(ctx context.Context, siteID, title string) error {
	key := r.key(siteID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, title)
		pipe.LTrim(ctx, key, 0, int64(r.keep-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("push recent title: %w", err)
	}
	return nil
}
