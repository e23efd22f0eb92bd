package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testMarket = "0x00000000000000000000000000000000000000ee"

func TestObserveOperationCountsOutcomes(t *testing.T) {
	m := NewMarketMetrics()
	m.ObserveOperation(testMarket, "place", "ok", time.Millisecond)
	m.ObserveOperation(testMarket, "place", "ok", time.Millisecond)
	m.ObserveOperation(testMarket, "place", "", time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues(testMarket, "place", "ok")); got != 2 {
		t.Fatalf("ok outcomes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(testMarket, "place", "unknown")); got != 1 {
		t.Fatalf("empty outcome should count as unknown, got %v", got)
	}
}

func TestObserveSaleSplitsProceedsByRole(t *testing.T) {
	m := NewMarketMetrics()
	m.ObserveSale(testMarket, big.NewInt(1000), map[string]*big.Int{
		"provider": big.NewInt(50),
		"operator": big.NewInt(47),
		"creator":  big.NewInt(91),
		"seller":   big.NewInt(812),
		"unused":   big.NewInt(0),
	})

	if got := testutil.ToFloat64(m.volume.WithLabelValues(testMarket)); got != 1000 {
		t.Fatalf("volume = %v", got)
	}
	for role, want := range map[string]float64{"provider": 50, "operator": 47, "creator": 91, "seller": 812} {
		if got := testutil.ToFloat64(m.proceeds.WithLabelValues(testMarket, role)); got != want {
			t.Fatalf("%s proceeds = %v, want %v", role, got, want)
		}
	}
	if n := testutil.CollectAndCount(m.proceeds); n != 4 {
		t.Fatalf("zero cuts must not create series, got %d", n)
	}
}

func TestOpenOfferingsGauge(t *testing.T) {
	m := NewMarketMetrics()
	m.SetOpenOfferings(testMarket, 3)
	m.AddOpenOfferings(testMarket, -1)
	if got := testutil.ToFloat64(m.OpenOfferings(testMarket)); got != 2 {
		t.Fatalf("open offerings = %v, want 2", got)
	}

	var nilMetrics *MarketMetrics
	nilMetrics.SetOpenOfferings(testMarket, 1)
	nilMetrics.ObserveWithdrawal(testMarket, big.NewInt(1))
}
