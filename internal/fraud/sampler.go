// Package fraud decides which fix submissions get pulled for manual
// review. Classification is a pure function of reviewer confidence and
// reward size; the sampling draw uses a cryptographically secure source
// so an adversary cannot predict which submissions slip through.
package fraud

import (
	"crypto/rand"
	"encoding/binary"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Classification tiers.
const (
	lowConfidenceThreshold = 7.0
	highRewardSats         = 50_000
	mediumRewardSats       = 10_000
)

type Strategy struct {
	ShouldSample bool
	SamplingRate float64
	RiskLevel    RiskLevel
}

// Classify maps (confidence, reward) to a sampling strategy and draws
// the sampling decision. Low-confidence submissions are always sampled.
func Classify(confidence float64, rewardSats int64) Strategy {
	rate, risk := rateFor(confidence, rewardSats)
	return Strategy{
		ShouldSample: secureUniform() < rate,
		SamplingRate: rate,
		RiskLevel:    risk,
	}
}

func rateFor(confidence float64, rewardSats int64) (float64, RiskLevel) {
	switch {
	case confidence < lowConfidenceThreshold:
		return 1.0, RiskCritical
	case rewardSats > highRewardSats:
		return 0.50, RiskHigh
	case rewardSats > mediumRewardSats:
		return 0.25, RiskMedium
	default:
		return 0.10, RiskLow
	}
}

// Submission is the minimal view needed for load estimation.
type Submission struct {
	Confidence float64
	RewardSats int64
}

// ExpectedSamples sums the per-submission sampling rates over a batch.
// No draws are performed; the result is the expected review load.
func ExpectedSamples(batch []Submission) float64 {
	var total float64
	for _, s := range batch {
		rate, _ := rateFor(s.Confidence, s.RewardSats)
		total += rate
	}
	return total
}

// secureUniform returns a uniform value in [0, 1) from crypto/rand.
func secureUniform() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Cannot read entropy: sample. Reviewing too much is the safe
		// failure mode.
		return 0
	}
	// 53 bits of mantissa.
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}
