package classify

import (
	"fmt"
	"math"

	"github.com/imalyk/deepscan/pkg/job"
)

const (
	commentUncertain = "The model is uncertain about the result. We recommend further verification for greater confidence."
	commentReal      = "Based on the analysis, the model considers this video to be authentic with high confidence."
	commentFake      = "Based on the analysis, the model considers this video to be manipulated with high confidence."
)

// Verdict maps a fake probability to the reported result. The tie-break at
// exactly p = 0.5 resolves to REAL: only p strictly above the boundary is
// FAKE. Confidence is the probability mass of the winning class, so it lies
// in [50, 100] everywhere except exactly at the boundary.
func Verdict(p float64) job.Result {
	prediction := job.PredictionReal
	winning := 1 - p
	if p > 0.5 {
		prediction = job.PredictionFake
		winning = p
	}

	comment := commentFake
	if prediction == job.PredictionReal {
		comment = commentReal
	}
	// Symmetric uncertainty band around the decision boundary overrides the
	// confident wording on either side.
	if p > 0.4 && p < 0.6 {
		comment = commentUncertain
	}

	return job.Result{
		Prediction:  prediction,
		Confidence:  round2(winning * 100),
		Probability: fmt.Sprintf("%.4f", p),
		Comment:     comment,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
