package fraud

import (
	"math"
	"testing"
)

func TestClassifyTiers(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		rewardSats int64
		wantRate   float64
		wantRisk   RiskLevel
	}{
		{"low confidence always critical", 6, 1000, 1.0, RiskCritical},
		{"low confidence beats big reward", 2, 100_000, 1.0, RiskCritical},
		{"boundary confidence 7 not critical", 7, 1000, 0.10, RiskLow},
		{"big reward", 9, 60_000, 0.50, RiskHigh},
		{"reward boundary 50k exclusive", 9, 50_000, 0.25, RiskMedium},
		{"medium reward", 9, 20_000, 0.25, RiskMedium},
		{"reward boundary 10k exclusive", 9, 10_000, 0.10, RiskLow},
		{"small reward", 9, 5_000, 0.10, RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.confidence, tt.rewardSats)
			if got.SamplingRate != tt.wantRate {
				t.Errorf("SamplingRate = %v, want %v", got.SamplingRate, tt.wantRate)
			}
			if got.RiskLevel != tt.wantRisk {
				t.Errorf("RiskLevel = %v, want %v", got.RiskLevel, tt.wantRisk)
			}
		})
	}
}

func TestClassifyCriticalAlwaysSamples(t *testing.T) {
	for i := 0; i < 100; i++ {
		if s := Classify(6, 1000); !s.ShouldSample {
			t.Fatal("rate 1.0 must always sample")
		}
	}
}

func TestExpectedSamples(t *testing.T) {
	batch := []Submission{
		{Confidence: 6, RewardSats: 1_000},  // 1.0
		{Confidence: 9, RewardSats: 60_000}, // 0.50
		{Confidence: 9, RewardSats: 20_000}, // 0.25
		{Confidence: 9, RewardSats: 5_000},  // 0.10
	}
	got := ExpectedSamples(batch)
	if math.Abs(got-1.85) > 1e-9 {
		t.Errorf("ExpectedSamples = %v, want 1.85", got)
	}

	if ExpectedSamples(nil) != 0 {
		t.Error("empty batch should have zero expected samples")
	}
}

// Law of large numbers: over many draws the observed frequency should
// land near the configured rate. Wide tolerance keeps this stable.
func TestSamplingFrequencyTracksRate(t *testing.T) {
	const n = 20_000
	sampled := 0
	for i := 0; i < n; i++ {
		if Classify(9, 20_000).ShouldSample { // rate 0.25
			sampled++
		}
	}
	freq := float64(sampled) / n
	if freq < 0.20 || freq > 0.30 {
		t.Errorf("observed frequency %v, expected near 0.25", freq)
	}
}

func TestSecureUniformRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := secureUniform()
		if v < 0 || v >= 1 {
			t.Fatalf("secureUniform() = %v, out of [0,1)", v)
		}
	}
}
