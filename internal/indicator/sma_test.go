package indicator

import (
	"math"
	"testing"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// aligned output: first two positions lack history
	expected := []float64{math.NaN(), math.NaN(), 11, 12, 13, 14}

	if len(sma) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(sma))
	}

	for i, v := range expected {
		if math.IsNaN(v) {
			if !math.IsNaN(sma[i]) {
				t.Errorf("sma[%d] = %f, want NaN", i, sma[i])
			}
			continue
		}
		if !almostEqual(sma[i], v, 1e-12) {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], v)
		}
	}
}

func TestSMA_NaNPoisonsWindow(t *testing.T) {
	prices := []float64{10, math.NaN(), 12, 13, 14}
	sma := SMA(prices, 2)

	if !math.IsNaN(sma[1]) || !math.IsNaN(sma[2]) {
		t.Errorf("windows containing NaN should be NaN, got %v", sma)
	}
	if !almostEqual(sma[3], 12.5, 1e-12) {
		t.Errorf("sma[3] = %f, want 12.5", sma[3])
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	sma := SMA(prices, 5)

	for i, v := range sma {
		if !math.IsNaN(v) {
			t.Errorf("sma[%d] = %f, want NaN", i, v)
		}
	}
}

func TestEMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}
	ema := EMA(prices, 3)

	if len(ema) != 6 {
		t.Fatalf("expected 6 values, got %d", len(ema))
	}

	// First EMA = SMA = 11
	if ema[2] != 11 {
		t.Errorf("first EMA should equal SMA, got %f", ema[2])
	}

	for i := 3; i < len(ema); i++ {
		if ema[i] <= ema[i-1] {
			t.Errorf("EMA should be increasing, ema[%d]=%f <= ema[%d]=%f", i, ema[i], i-1, ema[i-1])
		}
	}
}

func TestEMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	ema := EMA(prices, 5)

	for i, v := range ema {
		if !math.IsNaN(v) {
			t.Errorf("ema[%d] = %f, want NaN", i, v)
		}
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
