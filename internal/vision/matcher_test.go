package vision_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezbo/shopbot/internal/catalog"
	"github.com/ezbo/shopbot/internal/config"
	"github.com/ezbo/shopbot/internal/vision"
)

func matcherConfig(threshold float64) config.MatcherConfig {
	return config.MatcherConfig{
		Threshold:        threshold,
		StructuralWeight: 0.7,
		FeatureWeight:    0.3,
		CanonicalSize:    128,
		FetchTimeout:     5 * time.Second,
	}
}

// testImage encodes a PNG of random 8x8 gray blocks. Distinct seeds give
// visually distinct images; the block scale survives resizing.
func testImage(t *testing.T, seed int64) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for by := 0; by < 256; by += 8 {
		for bx := 0; bx < 256; bx += 8 {
			v := uint8(rng.Intn(256))
			for y := by; y < by+8; y++ {
				for x := bx; x < bx+8; x++ {
					img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
				}
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMatcher_SelfMatch(t *testing.T) {
	t.Parallel()

	productImage := testImage(t, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(productImage)
	}))
	defer srv.Close()

	m := vision.NewMatcher(matcherConfig(0.4), nil)
	products := []catalog.Product{
		{ID: 1, Category: "Men", Type: "Panjabi", ImageURL: srv.URL + "/panjabi.png", Price: 800},
	}

	result, err := m.Match(context.Background(), productImage, products)
	require.NoError(t, err)
	require.NotNil(t, result, "identical image should match above threshold")

	assert.Equal(t, int64(1), result.Product.ID)
	assert.Greater(t, result.Score, 0.4)
	assert.InDelta(t, 1.0, result.Structural, 0.01)
}

func TestMatcher_NoMatchBelowThreshold(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testImage(t, 2))
	}))
	defer srv.Close()

	// Near-impossible threshold: a different image must come back nil.
	m := vision.NewMatcher(matcherConfig(0.99), nil)
	products := []catalog.Product{
		{ID: 1, Category: "Men", Type: "Panjabi", ImageURL: srv.URL + "/panjabi.png", Price: 800},
	}

	result, err := m.Match(context.Background(), testImage(t, 1), products)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestMatcher_Deterministic(t *testing.T) {
	t.Parallel()

	productImage := testImage(t, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(productImage)
	}))
	defer srv.Close()

	m := vision.NewMatcher(matcherConfig(0.1), nil)
	products := []catalog.Product{
		{ID: 1, Type: "Panjabi", ImageURL: srv.URL + "/a.png"},
	}
	query := testImage(t, 3)

	first, err := m.Match(context.Background(), query, products)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := m.Match(context.Background(), query, products)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Product.ID, second.Product.ID)
}

func TestMatcher_SkipsFailingCandidates(t *testing.T) {
	t.Parallel()

	goodImage := testImage(t, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(goodImage)
	}))
	defer srv.Close()

	m := vision.NewMatcher(matcherConfig(0.4), nil)
	products := []catalog.Product{
		{ID: 1, Type: "Shirt", ImageURL: srv.URL + "/missing.png"},
		{ID: 2, Type: "Panjabi", ImageURL: srv.URL + "/good.png"},
		{ID: 3, Type: "Cap", ImageURL: ""},
	}

	result, err := m.Match(context.Background(), goodImage, products)
	require.NoError(t, err)
	require.NotNil(t, result, "scan must survive a failing candidate")
	assert.Equal(t, int64(2), result.Product.ID)
}

func TestMatcher_RejectsUndecodableQuery(t *testing.T) {
	t.Parallel()

	m := vision.NewMatcher(matcherConfig(0.4), nil)
	_, err := m.Match(context.Background(), []byte("not an image"), nil)
	require.Error(t, err)
}

func TestMatcher_FetchImage(t *testing.T) {
	t.Parallel()

	payload := testImage(t, 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	m := vision.NewMatcher(matcherConfig(0.4), nil)

	data, err := m.FetchImage(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = m.FetchImage(context.Background(), srv.URL+"/gone.png")
	require.Error(t, err)
}
