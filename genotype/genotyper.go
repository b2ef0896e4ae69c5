// Package genotype infers STR genotypes from per-read repeat lengths and SNP
// phasing likelihoods, jointly with a stutter noise model, via
// expectation-maximization. The E step computes genotype posteriors per
// sample and phase posteriors per read under the current model; the M step
// refits the stutter parameters and the population allele priors from those
// posteriors.
package genotype

import (
	"fmt"
	"math"
	"sort"

	"github.com/strbio/str/stutter"
)

// Opts holds construction-time knobs for a Genotyper.
type Opts struct {
	// Parallelism bounds the number of concurrent E-step workers.
	// 0 uses one worker per CPU.
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	Parallelism: 0,
}

// ErrNotConfigured is returned when inference is requested before a stutter
// model has been specified or learned.
var ErrNotConfigured = fmt.Errorf("genotype: no stutter model has been specified or learned")

// Genotyper owns the flattened read index for one STR locus and the
// posterior tensors the EM algorithm iterates over. All tensors are
// allocated once at construction and overwritten in place each iteration.
type Genotyper struct {
	chrom      string
	start, end uint32
	motifLen   int

	numReads   int
	numSamples int
	numAlleles int

	// Per-read parallel arrays, flattened across samples. Reads belonging to
	// one sample occupy a contiguous range.
	alleleIndex []int     // index of each read's STR size in the allele catalog
	logP1       []float64 // log SNP phasing likelihood vs chromosome 1
	logP2       []float64 // log SNP phasing likelihood vs chromosome 2
	sampleLabel []int     // owning sample of each read

	bpsPerAllele    []int // allele catalog; index 0 is the reference size
	readsPerSample  []int
	sampleReadStart []int // prefix offsets into the read arrays, len numSamples+1

	sampleNames   []string
	sampleIndices map[string]int

	model *stutter.Model
	// logShift[cat*numAlleles+a] caches model.LogProb over (read size
	// category, candidate allele) pairs; read sizes are quantized to the
	// catalog, so this covers every LogProb the E step can need. Rebuilt
	// whenever the model is swapped.
	logShift []float64

	// EM tensors, indexed (allele1, allele2, sample) and
	// (allele1, allele2, read, phase) respectively.
	logGtPriors            []float64
	logSamplePosteriors    []float64
	logReadPhasePosteriors []float64
	// Optional per-sample per-pair priors, same indexing as
	// logSamplePosteriors. Nil unless SetAllelePriors was called.
	logAllelePriors []float64

	parallelism int
	stats       Stats
}

// New builds a Genotyper for the locus [start, end) on chrom. bps, logP1 and
// logP2 are parallel per-sample read observations: bps[i][j] is the observed
// repeat length in bp of sample i's j-th read, and logP1/logP2 its phasing
// log likelihoods (both <= 0). refAllele is the reference repeat length in
// bp; it always becomes allele index 0.
func New(chrom string, start, end uint32, bps [][]int, logP1, logP2 [][]float64,
	sampleNames []string, motifLen, refAllele int, opts Opts) (*Genotyper, error) {
	if motifLen <= 0 {
		return nil, fmt.Errorf("genotype: motif length must be positive, got %d", motifLen)
	}
	if len(bps) != len(logP1) || len(bps) != len(logP2) || len(bps) != len(sampleNames) {
		return nil, fmt.Errorf("genotype: dimension mismatch: %d size lists, %d/%d phasing lists, %d sample names",
			len(bps), len(logP1), len(logP2), len(sampleNames))
	}

	g := &Genotyper{
		chrom:       chrom,
		start:       start,
		end:         end,
		motifLen:    motifLen,
		numSamples:  len(bps),
		sampleNames: append([]string(nil), sampleNames...),
		parallelism: opts.Parallelism,
	}
	g.sampleIndices = make(map[string]int, g.numSamples)
	for i, name := range sampleNames {
		if _, dup := g.sampleIndices[name]; dup {
			return nil, fmt.Errorf("genotype: duplicate sample name %q", name)
		}
		g.sampleIndices[name] = i
	}

	// Collect the set of observed allele sizes and the total read count.
	sizes := map[int]bool{}
	for i := range bps {
		if len(bps[i]) != len(logP1[i]) || len(bps[i]) != len(logP2[i]) {
			return nil, fmt.Errorf("genotype: dimension mismatch for sample %q: %d sizes, %d/%d phasing likelihoods",
				sampleNames[i], len(bps[i]), len(logP1[i]), len(logP2[i]))
		}
		for _, bp := range bps[i] {
			sizes[bp] = true
		}
		g.numReads += len(bps[i])
	}

	// The reference allele is stored first; the remaining sizes are sorted
	// ascending.
	delete(sizes, refAllele)
	g.bpsPerAllele = make([]int, 0, len(sizes)+1)
	g.bpsPerAllele = append(g.bpsPerAllele, refAllele)
	for bp := range sizes {
		g.bpsPerAllele = append(g.bpsPerAllele, bp)
	}
	sort.Ints(g.bpsPerAllele[1:])
	g.numAlleles = len(g.bpsPerAllele)
	alleleIndices := make(map[int]int, g.numAlleles)
	for i, bp := range g.bpsPerAllele {
		alleleIndices[bp] = i
	}

	g.alleleIndex = make([]int, g.numReads)
	g.logP1 = make([]float64, g.numReads)
	g.logP2 = make([]float64, g.numReads)
	g.sampleLabel = make([]int, g.numReads)
	g.readsPerSample = make([]int, g.numSamples)
	g.sampleReadStart = make([]int, g.numSamples+1)

	read := 0
	for i := range bps {
		g.readsPerSample[i] = len(bps[i])
		g.sampleReadStart[i] = read
		for j := range bps[i] {
			if logP1[i][j] > 0.0 || logP2[i][j] > 0.0 {
				return nil, fmt.Errorf("genotype: sample %q read %d: phasing log likelihoods must be <= 0, got %v/%v",
					sampleNames[i], j, logP1[i][j], logP2[i][j])
			}
			g.alleleIndex[read] = alleleIndices[bps[i][j]]
			g.logP1[read] = logP1[i][j]
			g.logP2[read] = logP2[i][j]
			g.sampleLabel[read] = i
			read++
		}
	}
	g.sampleReadStart[g.numSamples] = read

	nPairs := g.numAlleles * g.numAlleles
	g.logGtPriors = make([]float64, g.numAlleles)
	g.logSamplePosteriors = make([]float64, nPairs*g.numSamples)
	g.logReadPhasePosteriors = make([]float64, nPairs*g.numReads*2)
	g.initLogGtPriors()
	return g, nil
}

// SetStutterModel installs an externally estimated stutter model, replacing
// any previous one.
func (g *Genotyper) SetStutterModel(m *stutter.Model) error {
	if m == nil {
		return fmt.Errorf("genotype: nil stutter model")
	}
	if m.MotifLen != g.motifLen {
		return fmt.Errorf("genotype: stutter model motif length %d does not match locus motif length %d",
			m.MotifLen, g.motifLen)
	}
	g.installModel(m)
	return nil
}

// StutterModel exposes the currently active stutter model for diagnostics.
func (g *Genotyper) StutterModel() (*stutter.Model, error) {
	if g.model == nil {
		return nil, ErrNotConfigured
	}
	return g.model, nil
}

// SetAllelePriors installs per-sample, per-ordered-pair genotype log priors,
// indexed like the sample posterior tensor: (allele1, allele2, sample).
// They are consumed verbatim by inference when population frequencies are
// not in use.
func (g *Genotyper) SetAllelePriors(logPriors []float64) error {
	want := g.numAlleles * g.numAlleles * g.numSamples
	if len(logPriors) != want {
		return fmt.Errorf("genotype: allele prior tensor has %d entries, want %d", len(logPriors), want)
	}
	for i, lp := range logPriors {
		if lp > 0.0 || math.IsNaN(lp) {
			return fmt.Errorf("genotype: allele prior entry %d is not a log probability: %v", i, lp)
		}
	}
	g.logAllelePriors = append([]float64(nil), logPriors...)
	return nil
}

// installModel swaps the model pointer and rebuilds the shift table. The
// swap happens only between EM steps, so step code never observes a
// partially updated model.
func (g *Genotyper) installModel(m *stutter.Model) {
	g.model = m
	if g.logShift == nil {
		g.logShift = make([]float64, g.numAlleles*g.numAlleles)
	}
	for cat := 0; cat < g.numAlleles; cat++ {
		for a := 0; a < g.numAlleles; a++ {
			g.logShift[cat*g.numAlleles+a] = m.LogProb(g.bpsPerAllele[cat] - g.bpsPerAllele[a])
		}
	}
}

func (g *Genotyper) initLogGtPriors() {
	lp := -math.Log(float64(g.numAlleles))
	for i := range g.logGtPriors {
		g.logGtPriors[i] = lp
	}
}

// Locus metadata and dimension accessors.

func (g *Genotyper) Chrom() string   { return g.chrom }
func (g *Genotyper) Start() uint32   { return g.start }
func (g *Genotyper) End() uint32     { return g.end }
func (g *Genotyper) MotifLen() int   { return g.motifLen }
func (g *Genotyper) NumReads() int   { return g.numReads }
func (g *Genotyper) NumSamples() int { return g.numSamples }
func (g *Genotyper) NumAlleles() int { return g.numAlleles }

// AlleleSize returns the bp length of the given allele index. Index 0 is
// always the reference allele.
func (g *Genotyper) AlleleSize(a int) int { return g.bpsPerAllele[a] }

// SampleName returns the name of the given sample index.
func (g *Genotyper) SampleName(s int) string { return g.sampleNames[s] }

// SampleIndex returns the index of the named sample, or -1.
func (g *Genotyper) SampleIndex(name string) int {
	if i, ok := g.sampleIndices[name]; ok {
		return i
	}
	return -1
}

// SampleReadRange returns the half-open range of read indices owned by
// sample s.
func (g *Genotyper) SampleReadRange(s int) (start, end int) {
	return g.sampleReadStart[s], g.sampleReadStart[s+1]
}

// ReadAlleleIndex returns the allele catalog index of read r's observed
// size.
func (g *Genotyper) ReadAlleleIndex(r int) int { return g.alleleIndex[r] }

// SamplePosterior returns log P(genotype = (a1, a2) | sample s's reads) as
// of the last E step.
func (g *Genotyper) SamplePosterior(a1, a2, s int) float64 {
	return g.logSamplePosteriors[g.pairIdx(a1, a2, s)]
}

// ReadPhasePosterior returns log P(read r came from phase+1 | genotype
// (a1, a2)) as of the last E step. phase is 0 or 1.
func (g *Genotyper) ReadPhasePosterior(a1, a2, r, phase int) float64 {
	return g.logReadPhasePosteriors[g.phaseIdx(a1, a2, r)+phase]
}

// MaxPosteriorPair returns the MAP ordered allele pair for sample s along
// with its posterior log probability.
func (g *Genotyper) MaxPosteriorPair(s int) (a1, a2 int, logPost float64) {
	logPost = math.Inf(-1)
	for i := 0; i < g.numAlleles; i++ {
		for j := 0; j < g.numAlleles; j++ {
			if lp := g.SamplePosterior(i, j, s); lp > logPost {
				a1, a2, logPost = i, j, lp
			}
		}
	}
	return a1, a2, logPost
}

// Stats returns a copy of the EM diagnostics accumulated so far.
func (g *Genotyper) Stats() Stats { return g.stats.clone() }

func (g *Genotyper) pairIdx(a1, a2, s int) int {
	return (a1*g.numAlleles+a2)*g.numSamples + s
}

func (g *Genotyper) phaseIdx(a1, a2, r int) int {
	return ((a1*g.numAlleles+a2)*g.numReads + r) * 2
}
