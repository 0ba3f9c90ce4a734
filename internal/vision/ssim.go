package vision

// Structural similarity over non-overlapping patches. The score compares
// luminance, contrast, and structure between two equally sized intensity
// planes and lands near [0,1] for visually similar inputs.

const ssimWindow = 8

// Stabilizer constants from the standard SSIM formulation with L=255.
const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

// structuralScore computes the mean SSIM of a and b. The planes must share
// dimensions; the caller guarantees this via canonical preprocessing.
func structuralScore(a, b *plane) float64 {
	if a.w != b.w || a.h != b.h || a.w == 0 {
		return 0
	}

	var total float64
	var windows int

	for wy := 0; wy+ssimWindow <= a.h; wy += ssimWindow {
		for wx := 0; wx+ssimWindow <= a.w; wx += ssimWindow {
			total += windowSSIM(a, b, wx, wy)
			windows++
		}
	}

	if windows == 0 {
		return 0
	}
	return total / float64(windows)
}

func windowSSIM(a, b *plane, wx, wy int) float64 {
	const n = ssimWindow * ssimWindow

	var sumA, sumB float64
	for y := wy; y < wy+ssimWindow; y++ {
		for x := wx; x < wx+ssimWindow; x++ {
			sumA += float64(a.at(x, y))
			sumB += float64(b.at(x, y))
		}
	}
	muA := sumA / n
	muB := sumB / n

	var varA, varB, cov float64
	for y := wy; y < wy+ssimWindow; y++ {
		for x := wx; x < wx+ssimWindow; x++ {
			da := float64(a.at(x, y)) - muA
			db := float64(b.at(x, y)) - muB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n - 1
	varB /= n - 1
	cov /= n - 1

	num := (2*muA*muB + ssimC1) * (2*cov + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}
