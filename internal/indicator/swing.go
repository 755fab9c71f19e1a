package indicator

import "sort"

// FindSwingPoints returns the indices of local peaks and troughs in closes,
// merged in ascending order. Consecutive peaks (and consecutive troughs) are
// at least minSeparation bars apart; when two candidates are closer than
// that, the more extreme one wins.
func FindSwingPoints(closes []float64, minSeparation int) []int {
	peaks := findPeaks(closes, minSeparation)

	neg := make([]float64, len(closes))
	for i, v := range closes {
		neg[i] = -v
	}
	troughs := findPeaks(neg, minSeparation)

	out := make([]int, 0, len(peaks)+len(troughs))
	out = append(out, peaks...)
	out = append(out, troughs...)
	sort.Ints(out)
	return out
}

// findPeaks returns strict local maxima of x. A flat top is reported once at
// its middle sample (rounded down). Peaks closer than distance are thinned,
// keeping the highest first.
func findPeaks(x []float64, distance int) []int {
	peaks := localMaxima(x)
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}

	// Visit peaks from highest to lowest; ties keep their index order so the
	// later peak is visited first, matching a stable ascending sort walked
	// backwards.
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func localMaxima(x []float64) []int {
	var peaks []int
	last := len(x) - 1
	for i := 1; i < last; i++ {
		if x[i-1] >= x[i] {
			continue
		}
		ahead := i + 1
		for ahead < last && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			left, right := i, ahead-1
			peaks = append(peaks, (left+right)/2)
			i = ahead
		}
	}
	return peaks
}
