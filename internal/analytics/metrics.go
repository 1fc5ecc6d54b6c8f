package analytics

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// TripMetrics summarises a set of completed round trips.
type TripMetrics struct {
	Trips          int     `json:"trips"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"winRate"`
	ProfitFactor   float64 `json:"profitFactor"` // +Inf when there are wins but no losses
	Expectancy     float64 `json:"expectancy"`   // mean PnL per trip
	MaxConsecLoss  int     `json:"maxConsecLoss"`
	AvgBars        float64 `json:"avgBars"`
	GrossProfit    float64 `json:"grossProfit"`
	GrossLoss      float64 `json:"grossLoss"`
	TotalFees      float64 `json:"totalFees"`
	LargestWin     float64 `json:"largestWin"`
	LargestLoss    float64 `json:"largestLoss"`
}

// ComputeTripMetrics aggregates round-trip statistics. Zero trips yields
// the zero value; a set with wins and no losses reports an infinite profit
// factor.
func ComputeTripMetrics(trips []RoundTrip) TripMetrics {
	var m TripMetrics
	m.Trips = len(trips)
	if m.Trips == 0 {
		return m
	}

	var pnlSum, barsSum float64
	consec := 0
	for _, t := range trips {
		pnlSum += t.PnL
		barsSum += float64(t.Bars)
		m.TotalFees += t.Fees

		switch {
		case t.PnL > 0:
			m.Wins++
			m.GrossProfit += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
			consec = 0
		case t.PnL < 0:
			m.Losses++
			m.GrossLoss += -t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
			consec++
			if consec > m.MaxConsecLoss {
				m.MaxConsecLoss = consec
			}
		default:
			// Break-even trip: neither win nor loss, resets the loss streak.
			consec = 0
		}
	}

	m.WinRate = float64(m.Wins) / float64(m.Trips)
	m.Expectancy = pnlSum / float64(m.Trips)
	m.AvgBars = barsSum / float64(m.Trips)

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = 0
	}
	return m
}

// MonthlyReturn is one calendar month's equity return.
type MonthlyReturn struct {
	Month     string  `json:"month"` // "2006-01", UTC
	ReturnPct float64 `json:"retPct"`
}

// EquityMetrics summarises an equity curve.
type EquityMetrics struct {
	Sharpe         float64         `json:"sharpe"`
	MaxDrawdownPct float64         `json:"maxDD"`
	Monthly        []MonthlyReturn `json:"monthly"`
}

// ComputeEquityMetrics derives the Sharpe ratio, maximum drawdown and UTC
// monthly returns from an equity curve. periodsPerYear annualises the
// per-sample Sharpe (e.g. 8760 for hourly bars); fewer than two samples
// yields the zero value.
func ComputeEquityMetrics(curve []domain.EquityPoint, periodsPerYear float64) EquityMetrics {
	var m EquityMetrics
	if len(curve) < 2 {
		return m
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev > 0 {
			returns = append(returns, curve[i].Equity/prev-1)
		}
	}

	if len(returns) > 1 {
		mean, errM := stats.Mean(returns)
		sd, errS := stats.StandardDeviationSample(returns)
		if errM == nil && errS == nil && sd > 0 {
			m.Sharpe = mean / sd * math.Sqrt(periodsPerYear)
		}
	}

	m.MaxDrawdownPct = maxDrawdownPct(curve)
	m.Monthly = monthlyReturns(curve)
	return m
}

func maxDrawdownPct(curve []domain.EquityPoint) float64 {
	peak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := (peak - p.Equity) / math.Max(peak, 1); dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD * 100
}

// monthlyReturns computes, per UTC calendar month, the return from the
// month's first equity sample to its last. A month whose samples never
// move reports 0%.
func monthlyReturns(curve []domain.EquityPoint) []MonthlyReturn {
	var out []MonthlyReturn
	var curMonth string
	var base, last float64

	flush := func() {
		if curMonth == "" || base <= 0 {
			return
		}
		out = append(out, MonthlyReturn{Month: curMonth, ReturnPct: (last/base - 1) * 100})
	}

	for _, p := range curve {
		month := time.UnixMilli(normalizeTs(p.Timestamp)).UTC().Format("2006-01")
		if month != curMonth {
			flush()
			curMonth = month
			base = p.Equity
		}
		last = p.Equity
	}
	flush()
	return out
}
