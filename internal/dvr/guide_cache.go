// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/sportsdvr/internal/cache"
)

// ChannelListTTL is how long a fetched channel list is reused.
const ChannelListTTL = 5 * time.Minute

const channelsKey = "channels"

// CachedGuide memoizes the channel list of a guide source. Programs are always
// fetched live.
type CachedGuide struct {
	src   GuideSource
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedGuide wraps src. A nil c uses a fresh in-memory cache without janitor.
func NewCachedGuide(src GuideSource, c cache.Cache) *CachedGuide {
	if c == nil {
		c = cache.NewMemoryCache(0)
	}
	return &CachedGuide{src: src, cache: c, ttl: ChannelListTTL}
}

func (g *CachedGuide) ListChannels(ctx context.Context) ([]Channel, error) {
	if v, ok := g.cache.Get(channelsKey); ok {
		return append([]Channel(nil), v.([]Channel)...), nil
	}
	v, err, _ := g.group.Do(channelsKey, func() (any, error) {
		chs, err := g.src.ListChannels(ctx)
		if err != nil {
			return nil, err
		}
		g.cache.Set(channelsKey, chs, g.ttl)
		return chs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]Channel(nil), v.([]Channel)...), nil
}

func (g *CachedGuide) ListPrograms(ctx context.Context, channelID string, from, to time.Time) ([]Program, error) {
	return g.src.ListPrograms(ctx, channelID, from, to)
}

// Invalidate drops the cached channel list.
func (g *CachedGuide) Invalidate() {
	g.cache.Delete(channelsKey)
}
