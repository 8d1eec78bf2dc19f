package iq

import "math"

// For 20 chunks:
// - 5% percentile  = 1 chunk
// - 95% percentile = 19th chunk
const minimumChunkCount = 20

// PowerBounds summarises the distribution of chunk powers in dB
type PowerBounds struct {
	Min   float64 // 5th percentile power level in dB
	Max   float64 // 95th percentile power level in dB
	Mean  float64 // Mean power level in dB
	Count uint64  // Number of chunks observed
}

// PowerHistogram maintains a histogram of chunk powers with 1dB bins.
// Chunks with zero power have no dB value and are not counted.
type PowerHistogram struct {
	bins       map[int]uint32 // Map of bin index to count
	totalCount uint64         // Total number of chunks
	minBin     int            // Cache for min bin
	maxBin     int            // Cache for max bin
}

// NewPowerHistogram creates a new histogram
func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// ToDB converts a linear power to dB. Zero power maps to -Inf.
func ToDB(power float64) float64 {
	return 10 * math.Log10(power)
}

// getBinIndex converts power value to bin index
func getBinIndex(db float64) int {
	return int(math.Floor(db)) // 1dB bins
}

// Observe adds a chunk report to the histogram
func (h *PowerHistogram) Observe(r ChunkReport) {
	if r.Power <= 0 {
		return
	}
	h.Update(ToDB(r.Power))
}

// Update adds a new power reading in dB to the histogram
func (h *PowerHistogram) Update(db float64) {
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return
	}

	bin := getBinIndex(db)

	// Halve every bin before any counter can overflow
	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++

	if bin < h.minBin {
		h.minBin = bin
	}
	if bin > h.maxBin {
		h.maxBin = bin
	}
}

// scaleDown scales all bin counts down by factor of 2
func (h *PowerHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}

		if bin < h.minBin {
			h.minBin = bin
		}
		if bin > h.maxBin {
			h.maxBin = bin
		}
	}
	h.totalCount /= 2
}

// Count returns the number of readings in the histogram
func (h *PowerHistogram) Count() uint64 {
	return h.totalCount
}

// Bounds returns the 5th and 95th percentile bins and the mean power. With fewer
// than 20 readings the extremes are returned instead of percentiles.
func (h *PowerHistogram) Bounds() (PowerBounds, bool) {
	if h.totalCount == 0 {
		return PowerBounds{}, false
	}

	var sumProduct float64
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		sumProduct += float64(bin) * float64(h.bins[bin])
	}
	mean := sumProduct / float64(h.totalCount)

	if h.totalCount < minimumChunkCount {
		return PowerBounds{Min: float64(h.minBin), Max: float64(h.maxBin), Mean: mean, Count: h.totalCount}, true
	}

	target5th := max(h.totalCount*5/100, 1)

	var count uint64
	min5th, max95th := h.minBin, h.maxBin

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target5th {
			min5th = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target5th {
			max95th = bin
			break
		}
	}

	return PowerBounds{
		Min:   float64(min5th),
		Max:   float64(max95th),
		Mean:  mean,
		Count: h.totalCount,
	}, true
}
