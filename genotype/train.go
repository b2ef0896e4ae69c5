package genotype

import (
	"math"

	"github.com/grailbio/base/log"
	"github.com/strbio/str/stutter"
)

// Stats records EM diagnostics for one locus.
type Stats struct {
	// Iterations is the number of completed EM iterations.
	Iterations int
	// LogLikelihoods is the EM objective after each iteration's E step.
	LogLikelihoods []float64
	// Anomalies counts iterations whose likelihood decreased beyond
	// tolerance; a nonzero count indicates numerical instability.
	Anomalies int
	// Converged reports whether the last Train call met its thresholds.
	Converged bool
}

func (s Stats) clone() Stats {
	s.LogLikelihoods = append([]float64(nil), s.LogLikelihoods...)
	return s
}

// Train runs EM until the total log likelihood changes by less than
// minAbsChange, or by a fraction of itself less than minFracChange, between
// consecutive iterations. It returns true on convergence and false when
// maxIter is exhausted first; either way the last computed model and priors
// remain installed as a best-effort result.
//
// If no stutter model was injected, training starts from the package seed
// model. Genotype priors are reset to uniform.
func (g *Genotyper) Train(maxIter int, minAbsChange, minFracChange float64) (bool, error) {
	if g.model == nil {
		g.installModel(stutter.Default(g.motifLen))
	}
	g.initLogGtPriors()
	g.stats = Stats{}

	prevLL := math.Inf(-1)
	for iter := 0; iter < maxIter; iter++ {
		ll, err := g.recalcLogSamplePosteriors(true)
		if err != nil {
			return false, err
		}
		g.stats.Iterations++
		g.stats.LogLikelihoods = append(g.stats.LogLikelihoods, ll)
		if ll < prevLL-minAbsChange {
			// EM guarantees a non-decreasing objective; a drop beyond
			// tolerance means numerical trouble, not a bug in the caller's
			// data. Keep iterating with the latest estimates.
			g.stats.Anomalies++
			log.Error.Printf("%s:%d EM iteration %d: log likelihood decreased %f -> %f",
				g.chrom, g.start, iter, prevLL, ll)
		}
		delta := math.Abs(ll - prevLL)
		if iter > 0 && (delta < minAbsChange || math.Abs(delta/ll) < minFracChange) {
			g.stats.Converged = true
			return true, nil
		}
		prevLL = ll

		if err := g.recalcLogReadPhasePosteriors(); err != nil {
			return false, err
		}
		if err := g.recalcStutterModel(); err != nil {
			return false, err
		}
		g.recalcLogGtPriors()
	}
	return false, nil
}

// Genotype runs a single inference pass under the currently installed
// stutter model, leaving the sample and read-phase posteriors ready for
// reporting. No parameters are re-estimated and the model is not mutated.
func (g *Genotyper) Genotype(usePopFreqs bool) error {
	if g.model == nil {
		return ErrNotConfigured
	}
	ll, err := g.recalcLogSamplePosteriors(usePopFreqs)
	if err != nil {
		return err
	}
	g.stats.LogLikelihoods = append(g.stats.LogLikelihoods, ll)
	return g.recalcLogReadPhasePosteriors()
}
