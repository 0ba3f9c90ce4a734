package vision

import (
	"math"
	"math/bits"
	"math/rand"
	"sort"
)

// Binary keypoint features in the ORB family: FAST segment-test corners,
// intensity-centroid orientation, and a steered 256-bit comparison
// descriptor matched by Hamming distance with a mutual cross-check.

const (
	fastThreshold   = 40
	fastArc         = 9
	descriptorBits  = 256
	descriptorWords = descriptorBits / 64
	patchRadius     = 15
	orientRadius    = 7
	maxKeypoints    = 500
	maxHamming      = 80
)

// fastCircle is the Bresenham circle of radius 3 used by the segment test.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// samplingPattern holds the point-pair offsets compared by the descriptor.
// It is generated once from a fixed seed, so descriptors are deterministic
// across processes and runs.
var samplingPattern [descriptorBits][4]int

func init() {
	rng := rand.New(rand.NewSource(0x5113))
	for i := range samplingPattern {
		for j := range samplingPattern[i] {
			samplingPattern[i][j] = rng.Intn(2*patchRadius+1) - patchRadius
		}
	}
}

type keypoint struct {
	x, y  int
	score int
	angle float64
}

type descriptor [descriptorWords]uint64

// detectKeypoints runs the FAST segment test over the plane interior and
// returns the strongest corners in a deterministic order.
func detectKeypoints(p *plane) []keypoint {
	margin := patchRadius + 3
	var kps []keypoint

	for y := margin; y < p.h-margin; y++ {
		for x := margin; x < p.w-margin; x++ {
			if score, ok := fastScore(p, x, y); ok {
				kps = append(kps, keypoint{x: x, y: y, score: score})
			}
		}
	}

	sort.Slice(kps, func(i, j int) bool {
		if kps[i].score != kps[j].score {
			return kps[i].score > kps[j].score
		}
		if kps[i].y != kps[j].y {
			return kps[i].y < kps[j].y
		}
		return kps[i].x < kps[j].x
	})
	if len(kps) > maxKeypoints {
		kps = kps[:maxKeypoints]
	}

	for i := range kps {
		kps[i].angle = orientation(p, kps[i].x, kps[i].y)
	}
	return kps
}

// fastScore checks for a contiguous arc of circle pixels all brighter or all
// darker than the center by the threshold, returning the summed absolute
// difference as the corner score.
func fastScore(p *plane, x, y int) (int, bool) {
	center := int(p.at(x, y))

	var brighter, darker [16]bool
	for i, off := range fastCircle {
		v := int(p.at(x+off[0], y+off[1]))
		brighter[i] = v >= center+fastThreshold
		darker[i] = v <= center-fastThreshold
	}

	if !hasArc(brighter) && !hasArc(darker) {
		return 0, false
	}

	score := 0
	for _, off := range fastCircle {
		d := int(p.at(x+off[0], y+off[1])) - center
		if d < 0 {
			d = -d
		}
		score += d
	}
	return score, true
}

func hasArc(flags [16]bool) bool {
	run := 0
	// Wrap around the circle once past the end to catch arcs crossing index 0.
	for i := 0; i < 16+fastArc; i++ {
		if flags[i%16] {
			run++
			if run >= fastArc {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// orientation computes the intensity-centroid angle of the patch around
// (x, y), making descriptors tolerant to in-plane rotation.
func orientation(p *plane, x, y int) float64 {
	var m01, m10 float64
	for dy := -orientRadius; dy <= orientRadius; dy++ {
		for dx := -orientRadius; dx <= orientRadius; dx++ {
			v := float64(p.at(x+dx, y+dy))
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// computeDescriptors builds a steered binary descriptor for each keypoint by
// comparing rotated sampling-pattern point pairs.
func computeDescriptors(p *plane, kps []keypoint) []descriptor {
	descs := make([]descriptor, len(kps))

	for i, kp := range kps {
		sin, cos := math.Sincos(kp.angle)
		var d descriptor

		for bit, pair := range samplingPattern {
			ax, ay := rotate(pair[0], pair[1], sin, cos)
			bx, by := rotate(pair[2], pair[3], sin, cos)

			va := p.at(clamp(kp.x+ax, 0, p.w-1), clamp(kp.y+ay, 0, p.h-1))
			vb := p.at(clamp(kp.x+bx, 0, p.w-1), clamp(kp.y+by, 0, p.h-1))
			if va < vb {
				d[bit/64] |= 1 << uint(bit%64)
			}
		}
		descs[i] = d
	}
	return descs
}

func rotate(x, y int, sin, cos float64) (int, int) {
	rx := cos*float64(x) - sin*float64(y)
	ry := sin*float64(x) + cos*float64(y)
	return int(math.Round(rx)), int(math.Round(ry))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func hamming(a, b descriptor) int {
	total := 0
	for i := range a {
		total += bits.OnesCount64(a[i] ^ b[i])
	}
	return total
}

// featureScore matches two descriptor sets with mutual nearest-neighbor
// cross-checking and returns matched pairs divided by the larger set size.
// Either side yielding no descriptors scores zero.
func featureScore(a, b []descriptor) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	aToB := nearestNeighbors(a, b)
	bToA := nearestNeighbors(b, a)

	matched := 0
	for i, j := range aToB {
		if j >= 0 && bToA[j] == i {
			matched++
		}
	}

	larger := len(a)
	if len(b) > larger {
		larger = len(b)
	}
	return float64(matched) / float64(larger)
}

// nearestNeighbors returns, for each descriptor in from, the index of its
// closest match in to, or -1 when nothing lands under the distance cap.
func nearestNeighbors(from, to []descriptor) []int {
	result := make([]int, len(from))
	for i, d := range from {
		best, bestDist := -1, maxHamming+1
		for j, e := range to {
			if dist := hamming(d, e); dist < bestDist {
				best, bestDist = j, dist
			}
		}
		result[i] = best
	}
	return result
}
