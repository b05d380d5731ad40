package analytics

import "math"

// RiskLevel is the ordinal classification of disabled-access attempts.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskLevelByCount classifies an absolute attempt count. It feeds the
// all-time dashboard panel; windowed figures use RiskLevelByRatio.
func RiskLevelByCount(attempts int64) RiskLevel {
	switch {
	case attempts > 20:
		return RiskHigh
	case attempts > 5:
		return RiskMedium
	}
	return RiskLow
}

// AttemptRatio returns attempts as a percentage of all activity, rounded to
// one decimal. It is zero when there is no activity.
func AttemptRatio(attempts, total int64) float64 {
	if total <= 0 || attempts <= 0 {
		return 0
	}
	return round1(100 * float64(attempts) / float64(total))
}

// RiskLevelByRatio classifies the share of attempts within a window.
func RiskLevelByRatio(attempts, total int64) RiskLevel {
	if total <= 0 || attempts <= 0 {
		return RiskLow
	}
	pct := 100 * float64(attempts) / float64(total)
	switch {
	case pct > 60:
		return RiskHigh
	case pct > 25:
		return RiskMedium
	}
	return RiskLow
}

// PercentChange compares two period counts. A rise from zero is reported as
// 100 and no activity in both periods as 0.
func PercentChange(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return round1(100 * float64(current-previous) / float64(previous))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
