package campaigns

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Downloader fetches one asset into the platform's cache.
type Downloader interface {
	Download(ctx context.Context, url string) error
}

// HTTPDownloader warms the HTTP cache by fetching the asset and discarding
// the body.
type HTTPDownloader struct {
	Client *http.Client
}

func (d HTTPDownloader) Download(ctx context.Context, url string) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build asset request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("failed to read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// AssetManager tracks which message images are cached and downloads the
// missing ones in parallel.
type AssetManager struct {
	mu        sync.RWMutex
	imagesCDN string
	fontsCDN  string
	cached    map[string]bool

	downloader Downloader
	workers    int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewAssetManager creates an asset manager running at most workers
// downloads at once.
func NewAssetManager(downloader Downloader, workers int, logger *zap.Logger, m *metrics.Metrics) *AssetManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &AssetManager{
		cached:     make(map[string]bool),
		downloader: downloader,
		workers:    workers,
		logger:     logger,
		metrics:    m,
	}
}

// SetCDN sets the URL prefixes for message images and fonts.
func (a *AssetManager) SetCDN(images, fonts string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.imagesCDN = images
	a.fontsCDN = fonts
}

func (a *AssetManager) ImagesCDN() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.imagesCDN
}

func (a *AssetManager) FontsCDN() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fontsCDN
}

// Manage downloads every asset of campaigns not cached yet. It returns the
// first download error once all downloads have finished.
func (a *AssetManager) Manage(ctx context.Context, campaigns []models.Campaign) error {
	cdn := a.ImagesCDN()

	var missing []string
	a.mu.RLock()
	for _, id := range AssetIDs(campaigns) {
		if !a.cached[id] {
			missing = append(missing, id)
		}
	}
	a.mu.RUnlock()

	if len(missing) == 0 || a.downloader == nil {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(a.workers)
	for _, id := range missing {
		id := id
		g.Go(func() error {
			err := a.downloader.Download(ctx, cdn+id)
			if a.metrics != nil {
				a.metrics.RecordAssetDownload(err == nil)
			}
			if err != nil {
				a.logger.Warn("asset download failed", zap.String("asset", id), zap.Error(err))
				return err
			}
			a.MarkCached(id)
			return nil
		})
	}
	return g.Wait()
}

// MarkCached records assets as available.
func (a *AssetManager) MarkCached(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.cached[id] = true
	}
}

// AssetsReady reports whether every asset of c is cached.
func (a *AssetManager) AssetsReady(c *models.Campaign) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, id := range AssetIDs([]models.Campaign{*c}) {
		if !a.cached[id] {
			return false
		}
	}
	return true
}

// AssetIDs lists the distinct button and image assets of the messages in
// campaigns, sorted.
func AssetIDs(campaigns []models.Campaign) []string {
	seen := map[string]bool{}
	for _, c := range campaigns {
		for _, m := range c.Messages {
			for _, f := range m.Template.Formats {
				for _, b := range f.Buttons {
					if id := b.ImageUp.String(); id != "" {
						seen[id] = true
					}
				}
				for _, img := range f.Images {
					if id := img.Image.String(); id != "" {
						seen[id] = true
					}
				}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
