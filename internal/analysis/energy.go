package analysis

import "strconv"

const joulesPerKWh = 3_600_000

// Estimate projects energy and cost for a score. The result is monotonic in
// score for non-negative rates.
func Estimate(score int, joulesPerScorePoint, ratePerKWh float64) Energy {
	joules := Round(float64(score)*joulesPerScorePoint, 4)
	perRun := joules / joulesPerKWh * ratePerKWh

	return Energy{
		JoulesPerRun:    joules,
		CostPerRun:      perRun,
		CostPer1000Runs: Round(perRun*1000, 6),
		CostPer1MRuns:   Round(perRun*1_000_000, 4),
	}
}

// Round rounds x to the given number of decimal places using the correctly
// rounded decimal form of x, so ties resolve to even on the exact binary value.
func Round(x float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return r
}
