package profit

import (
	"errors"
	"math"
	"testing"

	"github.com/mselser95/gridbot/pkg/types"
)

const epsilon = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestCalculate_ReferenceRoundTrip(t *testing.T) {
	b, err := Calculate(94000, 96000, 0.01, 0.001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"gross", b.GrossProfit, 20.00},
		{"buy-commission", b.BuyCommission, 0.94},
		{"sell-commission", b.SellCommission, 0.96},
		{"net", b.NetProfit, 18.10},
		{"invested", b.InvestedAmount, 940},
		{"percent", b.ProfitPercent, 18.10 / 940 * 100},
	}
	for _, c := range checks {
		if !approxEqual(c.got, c.want) {
			t.Errorf("%s: expected %.6f, got %.6f", c.name, c.want, c.got)
		}
	}
}

func TestNetProfit_ClosedForm(t *testing.T) {
	tests := []struct {
		name      string
		buy, sell float64
		qty, fee  float64
	}{
		{"profit", 100, 110, 2, 0.001},
		{"loss", 110, 100, 2, 0.001},
		{"zero-fee", 50, 55, 10, 0},
		{"tiny-qty", 94000, 96000, 0.00012, 0.00075},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := (tt.sell-tt.buy)*tt.qty - tt.fee*tt.qty*(tt.buy+tt.sell)
			got := NetProfit(tt.buy, tt.sell, tt.qty, tt.fee)
			if !approxEqual(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}

			b, err := Calculate(tt.buy, tt.sell, tt.qty, tt.fee)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !approxEqual(b.NetProfit, want) {
				t.Errorf("breakdown net: expected %v, got %v", want, b.NetProfit)
			}
		})
	}
}

func TestCalculate_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name           string
		buy, sell, qty float64
		fee            float64
	}{
		{"zero-buy", 0, 100, 1, 0.001},
		{"negative-buy", -1, 100, 1, 0.001},
		{"negative-sell", 100, -1, 1, 0.001},
		{"zero-qty", 100, 110, 0, 0.001},
		{"negative-fee", 100, 110, 1, -0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.buy, tt.sell, tt.qty, tt.fee)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestPercentage_NonPositiveInvested(t *testing.T) {
	for _, invested := range []float64{0, -5} {
		got := Percentage(10, invested)
		if got != 0 {
			t.Errorf("invested=%v: expected 0, got %v", invested, got)
		}
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("invested=%v: got non-finite %v", invested, got)
		}
	}
}

func TestFeeModel_TradeCommissionInQuote(t *testing.T) {
	m := FeeModel{BaseAsset: "BTC", QuoteAsset: "USDT", FeeRate: 0.001}

	tests := []struct {
		name  string
		trade types.Trade
		want  float64
	}{
		{
			name:  "quote-fee",
			trade: types.Trade{Price: 95000, Quantity: 0.01, Commission: 0.95, CommissionAsset: "USDT"},
			want:  0.95,
		},
		{
			name:  "base-fee",
			trade: types.Trade{Price: 95000, Quantity: 0.01, Commission: 0.00001, CommissionAsset: "BTC"},
			want:  0.95,
		},
		{
			name:  "other-asset-falls-back-to-rate",
			trade: types.Trade{Price: 95000, Quantity: 0.01, Commission: 0.002, CommissionAsset: "BNB"},
			want:  0.95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.TradeCommissionInQuote(&tt.trade)
			if !approxEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := Summarize(nil)
		if s.TotalTrades != 0 || s.AverageProfitPercent != 0 {
			t.Errorf("expected zero summary, got %+v", s)
		}
	})

	t.Run("two-trips", func(t *testing.T) {
		a, _ := Calculate(94000, 96000, 0.01, 0.001)
		b, _ := Calculate(100, 110, 1, 0)

		s := Summarize([]Breakdown{a, b})
		if s.TotalTrades != 2 {
			t.Errorf("expected 2 trades, got %d", s.TotalTrades)
		}
		if !approxEqual(s.TotalGrossProfit, 30) {
			t.Errorf("expected gross 30, got %v", s.TotalGrossProfit)
		}
		if !approxEqual(s.TotalCommission, 1.90) {
			t.Errorf("expected commission 1.90, got %v", s.TotalCommission)
		}
		if !approxEqual(s.TotalNetProfit, 28.10) {
			t.Errorf("expected net 28.10, got %v", s.TotalNetProfit)
		}
		wantAvg := (a.ProfitPercent + b.ProfitPercent) / 2
		if !approxEqual(s.AverageProfitPercent, wantAvg) {
			t.Errorf("expected avg %v, got %v", wantAvg, s.AverageProfitPercent)
		}
	})
}
