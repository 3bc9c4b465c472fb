// Package cache keeps rendered PDFs in redis so identical input is served
// without launching an engine.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docconvert/internal/domain"
	"docconvert/internal/infra/logging"
)

const (
	keyPrefix = "pdfcache:"
	opTimeout = time.Second
)

// RenderCache is a best-effort redis cache. A nil *RenderCache is a valid,
// always-missing cache.
type RenderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache storing entries for ttl. A non-positive ttl falls back to
// one minute.
func New(rdb *redis.Client, ttl time.Duration) *RenderCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RenderCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from everything that influences the rendered bytes.
func Key(html, header, footer string, g domain.RenderGeometry) string {
	h := sha256.New()
	for _, s := range []string{html, header, footer} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	for _, f := range []float64{g.PaperWidth, g.PaperHeight, g.MarginTop, g.MarginBottom, g.MarginLeft, g.MarginRight} {
		h.Write([]byte(strconv.FormatFloat(f, 'f', 4, 64)))
		h.Write([]byte{0})
	}
	for _, b := range []bool{g.PreferCSSPageSize, g.HeaderFooter, g.PrintBackground} {
		h.Write([]byte(strconv.FormatBool(b)))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF for key. Redis failures are logged and reported
// as a miss.
func (c *RenderCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cached, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, false
	}
	logging.Info("PDF cache hit", "key", key)
	return cached, true
}

// Set stores data under key.
func (c *RenderCache) Set(ctx context.Context, key string, data []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
