package genotype

import (
	"math"
	"runtime"

	"github.com/grailbio/base/traverse"
	"gonum.org/v1/gonum/floats"
)

var logOneHalf = math.Log(0.5)

// logAdd returns log(exp(a) + exp(b)) without allocating; the two-element
// case is the inner loop of both E steps.
func logAdd(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

func (g *Genotyper) workers() int {
	if g.parallelism > 0 {
		return g.parallelism
	}
	return runtime.NumCPU()
}

// recalcLogSamplePosteriors recomputes log P(genotype | reads) for every
// (allele pair, sample) cell and returns the total marginal log likelihood
// across samples, the EM objective. When usePopFreqs is set the genotype
// prior is the product of the per-allele population priors; otherwise the
// injected per-sample pair priors are used if present, and a uniform prior
// if not.
//
// Samples are independent given the model, so they are processed in
// parallel; each worker writes only its own samples' cells.
func (g *Genotyper) recalcLogSamplePosteriors(usePopFreqs bool) (float64, error) {
	nAlleles := g.numAlleles
	nPairs := nAlleles * nAlleles
	sampleLL := make([]float64, g.numSamples)

	workers := g.workers()
	err := traverse.Each(workers, func(job int) error {
		scratch := make([]float64, nPairs)
		for s := job; s < g.numSamples; s += workers {
			for a1 := 0; a1 < nAlleles; a1++ {
				for a2 := 0; a2 < nAlleles; a2++ {
					switch {
					case usePopFreqs:
						scratch[a1*nAlleles+a2] = g.logGtPriors[a1] + g.logGtPriors[a2]
					case g.logAllelePriors != nil:
						scratch[a1*nAlleles+a2] = g.logAllelePriors[g.pairIdx(a1, a2, s)]
					default:
						scratch[a1*nAlleles+a2] = -2.0 * math.Log(float64(nAlleles))
					}
				}
			}
			start, end := g.sampleReadStart[s], g.sampleReadStart[s+1]
			for r := start; r < end; r++ {
				cat := g.alleleIndex[r]
				shiftRow := g.logShift[cat*nAlleles : (cat+1)*nAlleles]
				lp1 := logOneHalf + g.logP1[r]
				lp2 := logOneHalf + g.logP2[r]
				for a1 := 0; a1 < nAlleles; a1++ {
					phase1 := lp1 + shiftRow[a1]
					row := scratch[a1*nAlleles : (a1+1)*nAlleles]
					for a2 := 0; a2 < nAlleles; a2++ {
						row[a2] += logAdd(phase1, lp2+shiftRow[a2])
					}
				}
			}
			norm := floats.LogSumExp(scratch)
			sampleLL[s] = norm
			if math.IsInf(norm, -1) {
				// Every genotype has zero likelihood for this sample
				// (contradictory phasing inputs). Report a flat posterior
				// rather than NaNs.
				flat := -math.Log(float64(nPairs))
				for i := 0; i < nPairs; i++ {
					scratch[i] = flat
				}
				norm = 0.0
			}
			for a1 := 0; a1 < nAlleles; a1++ {
				for a2 := 0; a2 < nAlleles; a2++ {
					g.logSamplePosteriors[g.pairIdx(a1, a2, s)] = scratch[a1*nAlleles+a2] - norm
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, ll := range sampleLL {
		total += ll
	}
	return total, nil
}

// recalcLogReadPhasePosteriors recomputes, for every (allele pair, read),
// the posterior over the read's two phase assignments given that genotype.
// These are the sufficient statistics for the stutter model refit. Allele
// pairs are independent, so the outer loop runs in parallel over a1.
func (g *Genotyper) recalcLogReadPhasePosteriors() error {
	nAlleles := g.numAlleles
	return traverse.Each(nAlleles, func(a1 int) error {
		for a2 := 0; a2 < nAlleles; a2++ {
			for r := 0; r < g.numReads; r++ {
				cat := g.alleleIndex[r]
				lp1 := logOneHalf + g.logP1[r] + g.logShift[cat*nAlleles+a1]
				lp2 := logOneHalf + g.logP2[r] + g.logShift[cat*nAlleles+a2]
				norm := logAdd(lp1, lp2)
				idx := g.phaseIdx(a1, a2, r)
				if math.IsInf(norm, -1) {
					// Both phases impossible; split the read evenly.
					g.logReadPhasePosteriors[idx] = logOneHalf
					g.logReadPhasePosteriors[idx+1] = logOneHalf
					continue
				}
				g.logReadPhasePosteriors[idx] = lp1 - norm
				g.logReadPhasePosteriors[idx+1] = lp2 - norm
			}
		}
		return nil
	})
}
