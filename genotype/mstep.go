package genotype

import (
	"math"

	"github.com/strbio/str/stutter"
)

// recalcLogGtPriors re-estimates the per-allele population priors from the
// current sample posteriors: each sample's posterior is marginalized over
// the partner allele, summed in probability space across samples, and
// renormalized over 2*numSamples chromosomes.
func (g *Genotyper) recalcLogGtPriors() {
	counts := make([]float64, g.numAlleles)
	for a1 := 0; a1 < g.numAlleles; a1++ {
		for a2 := 0; a2 < g.numAlleles; a2++ {
			for s := 0; s < g.numSamples; s++ {
				p := math.Exp(g.logSamplePosteriors[g.pairIdx(a1, a2, s)])
				counts[a1] += p
				counts[a2] += p
			}
		}
	}
	total := 2.0 * float64(g.numSamples)
	for a := range counts {
		g.logGtPriors[a] = math.Log(counts[a] / total)
	}
}

// recalcStutterModel refits the stutter parameters by weighted maximum
// likelihood. For every (allele pair, read, phase) combination, the bp shift
// between the read's observed size and the phase's allele receives weight
// exp(sample posterior + phase posterior). The refit model is installed
// atomically; the old model remains visible until the swap.
func (g *Genotyper) recalcStutterModel() error {
	var c stutter.Counts
	nAlleles := g.numAlleles
	for a1 := 0; a1 < nAlleles; a1++ {
		for a2 := 0; a2 < nAlleles; a2++ {
			for r := 0; r < g.numReads; r++ {
				s := g.sampleLabel[r]
				logPair := g.logSamplePosteriors[g.pairIdx(a1, a2, s)]
				idx := g.phaseIdx(a1, a2, r)
				size := g.bpsPerAllele[g.alleleIndex[r]]
				c.Add(size-g.bpsPerAllele[a1], g.motifLen,
					math.Exp(logPair+g.logReadPhasePosteriors[idx]))
				c.Add(size-g.bpsPerAllele[a2], g.motifLen,
					math.Exp(logPair+g.logReadPhasePosteriors[idx+1]))
			}
		}
	}
	m, err := stutter.Fit(c, g.model)
	if err != nil {
		return err
	}
	g.installModel(m)
	return nil
}
