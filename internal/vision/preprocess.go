// Package vision implements the catalog similarity matcher. A query photo
// and every catalog image pass through the same canonical preprocessing
// pipeline before being scored with a blend of structural similarity and
// binary feature correspondence.
package vision

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const blurSigma = 1.0

// plane is a single-channel intensity image with row-major pixels.
type plane struct {
	w, h int
	pix  []uint8
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]uint8, w*h)}
}

func (p *plane) at(x, y int) uint8 {
	return p.pix[y*p.w+x]
}

func (p *plane) set(x, y int, v uint8) {
	p.pix[y*p.w+x] = v
}

// normalize applies the canonical preprocessing pipeline: decode to
// grayscale intensity, resize to size x size, Gaussian blur, then Otsu
// binary threshold. The pipeline absorbs lighting, compression, and scale
// differences between a customer photo and a studio product photo.
func normalize(data []byte, size int) (*plane, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	gray := imaging.Grayscale(img)
	resized := imaging.Resize(gray, size, size, imaging.Lanczos)
	blurred := imaging.Blur(resized, blurSigma)

	p := planeFromNRGBA(blurred)
	threshold := otsuThreshold(p)
	binarize(p, threshold)
	return p, nil
}

// planeFromNRGBA extracts the intensity channel. The input is already
// grayscale, so the red channel carries the luminance.
func planeFromNRGBA(img *image.NRGBA) *plane {
	bounds := img.Bounds()
	p := newPlane(bounds.Dx(), bounds.Dy())
	for y := 0; y < p.h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < p.w; x++ {
			p.set(x, y, row[x*4])
		}
	}
	return p
}

// otsuThreshold computes the threshold maximizing between-class variance
// over the intensity histogram.
func otsuThreshold(p *plane) uint8 {
	var hist [256]int
	for _, v := range p.pix {
		hist[v]++
	}

	total := len(p.pix)
	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var sumB, wB float64
	bestVar := -1.0
	best := uint8(0)

	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}

		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF

		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}

	return best
}

func binarize(p *plane, threshold uint8) {
	for i, v := range p.pix {
		if v > threshold {
			p.pix[i] = 255
		} else {
			p.pix[i] = 0
		}
	}
}
