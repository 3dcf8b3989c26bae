package profit

// Summary aggregates realized profit over a set of completed round-trips.
type Summary struct {
	TotalTrades          int     `json:"total_trades"`
	TotalGrossProfit     float64 `json:"total_gross_profit"`
	TotalCommission      float64 `json:"total_commission"`
	TotalNetProfit       float64 `json:"total_net_profit"`
	TotalInvested        float64 `json:"total_invested"`
	AverageProfitPercent float64 `json:"average_profit_percent"`
}

// Summarize folds breakdowns into a Summary. The average percentage is the
// plain mean of the per-trip percentages.
func Summarize(trips []Breakdown) Summary {
	var s Summary
	if len(trips) == 0 {
		return s
	}

	percentSum := 0.0
	for _, b := range trips {
		s.TotalGrossProfit += b.GrossProfit
		s.TotalCommission += b.TotalCommission()
		s.TotalNetProfit += b.NetProfit
		s.TotalInvested += b.InvestedAmount
		percentSum += b.ProfitPercent
	}
	s.TotalTrades = len(trips)
	s.AverageProfitPercent = percentSum / float64(len(trips))

	return s
}
