package keypool

import "math"

// TokensPerDayDivisor converts the pooled token balance into a daily usage estimate.
const TokensPerDayDivisor = 500

// CalculateMaxUnitsOfWork returns how many units of unitCost fit in quotaRemaining.
// It returns 0 when unitCost is not positive or the quota is smaller than one unit.
func CalculateMaxUnitsOfWork(quotaRemaining, unitCost int64) int64 {
	if unitCost <= 0 || quotaRemaining <= 0 {
		return 0
	}
	return quotaRemaining / unitCost
}

// DaysToExhaust returns how many days of perDay usage the quota covers, rounded up.
func DaysToExhaust(quotaRemaining, perDay int64) int64 {
	if perDay <= 0 || quotaRemaining <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(quotaRemaining) / float64(perDay)))
}

// TokenUsagePerDay estimates daily token use from the pooled balance.
func TokenUsagePerDay(quotaRemaining int64) int64 {
	if quotaRemaining <= 0 {
		return 0
	}
	return quotaRemaining / TokensPerDayDivisor
}
