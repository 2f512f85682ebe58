package assets

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/store"
)

// Cache fills in mirrored image payloads. Metadata and payload are written
// separately: a record is visible without its image until the download
// lands.
type Cache struct {
	mirror  *store.Mirror
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger

	flight singleflight.Group
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCache(mirror *store.Mirror, fetcher Fetcher, m *metrics.Metrics, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		mirror:  mirror,
		fetcher: fetcher,
		metrics: m,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Digest fingerprints a payload.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EnsureGroupImage starts a download of the group's image unless the mirror
// already holds it. It does not block.
func (c *Cache) EnsureGroupImage(ctx context.Context, g model.Group) {
	if g.ImageURL == "" {
		return
	}
	row, err := c.mirror.Groups.GetByID(ctx, g.ID)
	if err != nil {
		c.logger.Error("check cached group image", "id", g.ID, "error", err)
		return
	}
	if row != nil && row.HasImage() && row.ImageURL == g.ImageURL {
		return
	}
	c.start("group:"+g.ID, g.ImageURL, func(ctx context.Context, data []byte, digest string) (bool, error) {
		return c.mirror.Groups.AttachImage(ctx, g.ID, g.ImageURL, data, digest)
	})
}

// EnsureMemberImage is EnsureGroupImage for member avatars.
func (c *Cache) EnsureMemberImage(ctx context.Context, m model.Member) {
	if m.ImageURL == "" {
		return
	}
	row, err := c.mirror.Members.GetByID(ctx, m.ID)
	if err != nil {
		c.logger.Error("check cached member image", "id", m.ID, "error", err)
		return
	}
	if row != nil && row.HasImage() && row.ImageURL == m.ImageURL {
		return
	}
	c.start("member:"+m.ID, m.ImageURL, func(ctx context.Context, data []byte, digest string) (bool, error) {
		return c.mirror.Members.AttachImage(ctx, m.ID, m.ImageURL, data, digest)
	})
}

type attachFunc func(ctx context.Context, data []byte, digest string) (bool, error)

func (c *Cache) start(owner, ref string, attach attachFunc) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		// Rows sharing one reference download it once.
		v, err, _ := c.flight.Do(ref, func() (any, error) {
			return c.fetcher.Fetch(c.ctx, ref)
		})
		c.metrics.AssetDownload(err)
		if err != nil {
			c.logger.Warn("image download failed", "owner", owner, "ref", ref, "error", err)
			return
		}
		data := v.([]byte)
		ok, err := attach(c.ctx, data, Digest(data))
		if err != nil {
			c.logger.Error("attach image", "owner", owner, "error", err)
			return
		}
		if !ok {
			c.logger.Debug("image reference changed during download", "owner", owner, "ref", ref)
		}
	}()
}

// Wait blocks until every started download has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight downloads and waits for them to exit.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
	return nil
}
