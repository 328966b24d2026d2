package factor

import "math"

// certainLogOdds stands in for ±Inf so results stay JSON-encodable.
const certainLogOdds = 999.0

// ProbToLogOdds converts a probability into base-10 log odds:
// log10( p / (1-p) ).
// Probabilities of exactly 0 or 1 map to ∓999 / ±999.
func ProbToLogOdds(p float64) float64 {
	if p >= 1.0 {
		return certainLogOdds
	}
	if p <= 0.0 {
		return -certainLogOdds
	}
	return math.Log10(p / (1.0 - p))
}

// LogOddsToProb is the inverse of ProbToLogOdds.
// P = 1 / (1 + 10^-L), evaluated on the side where 10^x cannot overflow.
func LogOddsToProb(l float64) float64 {
	if l >= certainLogOdds {
		return 1
	}
	if l <= -certainLogOdds {
		return 0
	}
	if l > 0 {
		return 1 / (1 + math.Pow(10, -l))
	}
	odds := math.Pow(10, l)
	return odds / (1 + odds)
}
