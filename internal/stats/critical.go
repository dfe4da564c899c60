package stats

// Two-sided critical values. Below 30 observations the t-distribution at
// n-1 degrees of freedom is used; at 30 and above the normal approximation
// is close enough.

// z values for the three supported two-sided confidence percentages
const (
	z80 = 1.2816
	z90 = 1.6449
	z95 = 1.9600
)

// t-distribution two-sided critical values indexed by degrees of freedom
// (1 through 29), one table per supported percentage.
var tTable80 = [...]float64{
	3.078, 1.886, 1.638, 1.533, 1.476, 1.440, 1.415, 1.397, 1.383, 1.372,
	1.363, 1.356, 1.350, 1.345, 1.341, 1.337, 1.333, 1.330, 1.328, 1.325,
	1.323, 1.321, 1.319, 1.318, 1.316, 1.315, 1.314, 1.313, 1.311,
}

var tTable90 = [...]float64{
	6.314, 2.920, 2.353, 2.132, 2.015, 1.943, 1.895, 1.860, 1.833, 1.812,
	1.796, 1.782, 1.771, 1.761, 1.753, 1.746, 1.740, 1.734, 1.729, 1.725,
	1.721, 1.717, 1.714, 1.711, 1.708, 1.706, 1.703, 1.701, 1.699,
}

var tTable95 = [...]float64{
	12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
	2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
	2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045,
}

// criticalValue returns the two-sided critical value for the given
// confidence percentage and sample size. Percentages other than 80/90/95
// are snapped to the nearest supported column.
func criticalValue(pct float64, n int) float64 {
	col := nearestColumn(pct)
	if n >= 30 {
		switch col {
		case 80:
			return z80
		case 90:
			return z90
		default:
			return z95
		}
	}
	df := n - 1
	if df < 1 {
		df = 1
	}
	switch col {
	case 80:
		return tTable80[df-1]
	case 90:
		return tTable90[df-1]
	default:
		return tTable95[df-1]
	}
}

func nearestColumn(pct float64) int {
	switch {
	case pct <= 85:
		return 80
	case pct <= 92.5:
		return 90
	default:
		return 95
	}
}
