package vision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ezbo/shopbot/internal/catalog"
	"github.com/ezbo/shopbot/internal/config"
)

const maxImageBytes = 10 * 1024 * 1024

// MatchResult is the winning catalog candidate with its combined and
// component scores.
type MatchResult struct {
	Product    catalog.Product
	Score      float64
	Structural float64
	Feature    float64
}

// Matcher scores query images against the product catalog. It caches each
// product's normalized image and descriptors, keyed by image URL, so repeat
// scans skip the fetch and feature computation. The cache entry is
// invalidated when the product's image URL changes.
type Matcher struct {
	cfg    config.MatcherConfig
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[int64]*cacheEntry
}

type cacheEntry struct {
	imageURL    string
	normalized  *plane
	descriptors []descriptor
}

// NewMatcher creates a matcher with the given configuration.
func NewMatcher(cfg config.MatcherConfig, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		logger: logger.With("component", "matcher"),
		cache:  make(map[int64]*cacheEntry),
	}
}

// Match scores the query image against every product and returns the best
// candidate if its combined score exceeds the acceptance threshold, or nil
// for "no match". A fetch or decode failure on one catalog image is logged
// and skipped; it never aborts the scan. Identical inputs always produce
// the same winner and score.
func (m *Matcher) Match(ctx context.Context, queryImage []byte, products []catalog.Product) (*MatchResult, error) {
	query, err := normalize(queryImage, m.cfg.CanonicalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess query image: %w", err)
	}
	queryDescs := computeDescriptors(query, detectKeypoints(query))

	var best *MatchResult

	for _, product := range products {
		if product.ImageURL == "" {
			continue
		}

		entry, err := m.productEntry(ctx, product)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping catalog image",
				"product_id", product.ID, "image_url", product.ImageURL, "error", err)
			continue
		}

		structural := structuralScore(query, entry.normalized)
		feature := featureScore(queryDescs, entry.descriptors)
		combined := m.cfg.StructuralWeight*structural + m.cfg.FeatureWeight*feature

		m.logger.DebugContext(ctx, "Scored catalog candidate",
			"product_id", product.ID, "structural", structural, "feature", feature, "combined", combined)

		// Strict greater-than keeps the earliest candidate on ties, so the
		// winner is stable for a fixed catalog order.
		if best == nil || combined > best.Score {
			best = &MatchResult{
				Product:    product,
				Score:      combined,
				Structural: structural,
				Feature:    feature,
			}
		}
	}

	if best == nil || best.Score <= m.cfg.Threshold {
		m.logger.InfoContext(ctx, "No catalog match above threshold",
			"threshold", m.cfg.Threshold, "candidates", len(products))
		return nil, nil
	}

	m.logger.InfoContext(ctx, "Catalog match found",
		"product_id", best.Product.ID, "score", best.Score)
	return best, nil
}

// productEntry returns the cached normalized image and descriptors for a
// product, computing and caching them on miss or URL change.
func (m *Matcher) productEntry(ctx context.Context, product catalog.Product) (*cacheEntry, error) {
	m.mu.Lock()
	entry, ok := m.cache[product.ID]
	m.mu.Unlock()

	if ok && entry.imageURL == product.ImageURL {
		return entry, nil
	}

	data, err := m.fetchImage(ctx, product.ImageURL)
	if err != nil {
		return nil, err
	}

	normalized, err := normalize(data, m.cfg.CanonicalSize)
	if err != nil {
		return nil, err
	}

	entry = &cacheEntry{
		imageURL:    product.ImageURL,
		normalized:  normalized,
		descriptors: computeDescriptors(normalized, detectKeypoints(normalized)),
	}

	m.mu.Lock()
	m.cache[product.ID] = entry
	m.mu.Unlock()
	return entry, nil
}

// Invalidate drops the cached entry for a product, forcing recomputation on
// the next scan. Admin surfaces call it after an image change.
func (m *Matcher) Invalidate(productID int64) {
	m.mu.Lock()
	delete(m.cache, productID)
	m.mu.Unlock()
}

// FetchImage downloads an image with the matcher's timeout-bounded client.
// The dispatch path uses it to pull the customer's query photo.
func (m *Matcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	return m.fetchImage(ctx, url)
}

func (m *Matcher) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			m.logger.WarnContext(ctx, "Failed to close image response body", "url", url, "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body from %s: %w", url, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body from %s", url)
	}
	return data, nil
}
