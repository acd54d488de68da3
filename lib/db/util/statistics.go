// Size and distribution summaries that the engines report in GetInfo.
package util

import "math"

// ----------------------------------------------------------------------------
// Unit sizes
// ----------------------------------------------------------------------------

// sizeBounds are the upper bounds of the size buckets (16B up to 4GB).
// Sizes above the last bound fall into an extra bucket.
var sizeBounds = [...]int{
	16, 64, 256, 1 << 10, 4 << 10, // bytes
	16 << 10, 64 << 10, 256 << 10, 1 << 20, // KB
	4 << 20, 16 << 20, 64 << 20, // MB
	256 << 20, 1 << 30, 4 << 30,
}

// UnitSizes collects the sizes of the units of one engine.
// A GetInfo call fills a fresh value, so it is not safe for concurrent use.
type UnitSizes struct {
	buckets [len(sizeBounds) + 1]int
	count   int
	total   int
}

// Add records the size of one unit
func (s *UnitSizes) Add(size int) {
	i := 0
	for i < len(sizeBounds) && size > sizeBounds[i] {
		i++
	}
	s.buckets[i]++
	s.count++
	s.total += size
}

// Count returns the number of recorded units
func (s *UnitSizes) Count() int {
	return s.count
}

// Total returns the sum of all recorded sizes
func (s *UnitSizes) Total() int {
	return s.total
}

// Average returns the exact mean size
func (s *UnitSizes) Average() int {
	if s.count == 0 {
		return 0
	}
	return s.total / s.count
}

// Percentile estimates the size below which p percent (0-100) of the units fall.
// The estimate is the middle of the bucket that contains the percentile.
func (s *UnitSizes) Percentile(p int) int {
	if s.count == 0 || p < 0 || p > 100 {
		return 0
	}

	target := int(math.Ceil(float64(s.count) * float64(p) / 100))
	seen := 0
	for i, n := range s.buckets {
		seen += n
		if seen < target {
			continue
		}
		switch {
		case i == 0:
			return sizeBounds[0] / 2
		case i < len(sizeBounds):
			return (sizeBounds[i-1] + sizeBounds[i]) / 2
		default:
			return sizeBounds[len(sizeBounds)-1] * 2
		}
	}
	return s.Average()
}

// Median estimates the median size
func (s *UnitSizes) Median() int {
	return s.Percentile(50)
}

// ----------------------------------------------------------------------------
// Shard distribution
// ----------------------------------------------------------------------------

// DistributionStats describes how evenly values (e.g. units per shard) are spread
type DistributionStats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
	// Quality is 1 for a perfectly even spread and drops towards 0
	Quality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes the spread of values
func NewDistributionStats(values []float64) DistributionStats {
	if len(values) == 0 {
		return DistributionStats{}
	}

	d := DistributionStats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		d.Min = math.Min(d.Min, v)
		d.Max = math.Max(d.Max, v)
	}
	d.Mean = sum / float64(len(values))

	var squares float64
	for _, v := range values {
		squares += (v - d.Mean) * (v - d.Mean)
	}
	d.StdDeviation = math.Sqrt(squares / float64(len(values)))

	d.MinMaxRatio = 1
	if d.Max > 0 {
		d.MinMaxRatio = d.Min / d.Max
	}

	// coefficient of variation and min/max ratio weigh equally
	var cv float64
	if d.Mean > 0 {
		cv = d.StdDeviation / d.Mean
	}
	d.Quality = (1-math.Min(1, cv))*0.5 + d.MinMaxRatio*0.5
	return d
}
