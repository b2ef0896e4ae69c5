package genotype

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/strbio/str/stutter"
)

func expectNear(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("got %v, want %v (tolerance %v)", got, want, tol)
	}
}

// zeros returns a log-likelihood list of n perfectly uninformative reads.
func zeros(n int) []float64 {
	return make([]float64, n)
}

func testGenotyper(t *testing.T, bps [][]int, logP1, logP2 [][]float64, names []string, motifLen, refAllele int) *Genotyper {
	t.Helper()
	g, err := New("chr4", 1000, 1040, bps, logP1, logP2, names, motifLen, refAllele, DefaultOpts)
	assert.NoError(t, err)
	return g
}

// lowStutterModel assigns almost all mass to zero shift.
func lowStutterModel(t *testing.T, motifLen int) *stutter.Model {
	t.Helper()
	m, err := stutter.New(0.5, 1e-4, 1e-4, 0.5, 1e-4, 1e-4, motifLen)
	assert.NoError(t, err)
	return m
}

func TestAlleleCatalog(t *testing.T) {
	g := testGenotyper(t,
		[][]int{{16, 8}, {12, 20}},
		[][]float64{zeros(2), zeros(2)},
		[][]float64{zeros(2), zeros(2)},
		[]string{"NA12878", "NA12891"}, 4, 12)

	// Reference first, the rest ascending.
	expect.EQ(t, g.NumAlleles(), 4)
	expect.EQ(t, g.AlleleSize(0), 12)
	expect.EQ(t, g.AlleleSize(1), 8)
	expect.EQ(t, g.AlleleSize(2), 16)
	expect.EQ(t, g.AlleleSize(3), 20)

	// Reads keep their owning sample and size category.
	expect.EQ(t, g.NumReads(), 4)
	expect.EQ(t, g.ReadAlleleIndex(0), 2) // 16
	expect.EQ(t, g.ReadAlleleIndex(1), 1) // 8
	expect.EQ(t, g.ReadAlleleIndex(2), 0) // 12
	expect.EQ(t, g.ReadAlleleIndex(3), 3) // 20
	start, end := g.SampleReadRange(1)
	expect.EQ(t, start, 2)
	expect.EQ(t, end, 4)

	// Name <-> index mapping is bijective.
	expect.EQ(t, g.SampleIndex("NA12878"), 0)
	expect.EQ(t, g.SampleIndex("NA12891"), 1)
	expect.EQ(t, g.SampleName(1), "NA12891")
	expect.EQ(t, g.SampleIndex("missing"), -1)
}

func TestReferenceNotObserved(t *testing.T) {
	// The reference allele joins the catalog even when no read shows it.
	g := testGenotyper(t,
		[][]int{{16, 20}},
		[][]float64{zeros(2)},
		[][]float64{zeros(2)},
		[]string{"s0"}, 4, 12)
	expect.EQ(t, g.NumAlleles(), 3)
	expect.EQ(t, g.AlleleSize(0), 12)
}

func TestConstructionErrors(t *testing.T) {
	// Ragged per-sample lists.
	_, err := New("chr4", 0, 10, [][]int{{12, 16}}, [][]float64{zeros(1)}, [][]float64{zeros(2)},
		[]string{"s0"}, 4, 12, DefaultOpts)
	expect.True(t, err != nil)

	// Outer dimensions disagree.
	_, err = New("chr4", 0, 10, [][]int{{12}}, [][]float64{zeros(1)}, [][]float64{zeros(1)},
		[]string{"s0", "s1"}, 4, 12, DefaultOpts)
	expect.True(t, err != nil)

	// A log likelihood above 0 is not a probability.
	_, err = New("chr4", 0, 10, [][]int{{12}}, [][]float64{{0.5}}, [][]float64{zeros(1)},
		[]string{"s0"}, 4, 12, DefaultOpts)
	expect.True(t, err != nil)

	// Duplicate sample names break the name <-> index bijection.
	_, err = New("chr4", 0, 10, [][]int{{12}, {12}}, [][]float64{zeros(1), zeros(1)},
		[][]float64{zeros(1), zeros(1)}, []string{"s0", "s0"}, 4, 12, DefaultOpts)
	expect.True(t, err != nil)

	_, err = New("chr4", 0, 10, [][]int{{12}}, [][]float64{zeros(1)}, [][]float64{zeros(1)},
		[]string{"s0"}, 0, 12, DefaultOpts)
	expect.True(t, err != nil)
}

func TestNotConfigured(t *testing.T) {
	g := testGenotyper(t, [][]int{{12}}, [][]float64{zeros(1)}, [][]float64{zeros(1)},
		[]string{"s0"}, 4, 12)
	_, err := g.StutterModel()
	expect.EQ(t, err, ErrNotConfigured)
	expect.EQ(t, g.Genotype(true), ErrNotConfigured)
}

func TestSetStutterModel(t *testing.T) {
	g := testGenotyper(t, [][]int{{12}}, [][]float64{zeros(1)}, [][]float64{zeros(1)},
		[]string{"s0"}, 4, 12)
	expect.True(t, g.SetStutterModel(nil) != nil)
	expect.True(t, g.SetStutterModel(stutter.Default(2)) != nil) // wrong motif length

	m := stutter.Default(4)
	assert.NoError(t, g.SetStutterModel(m))
	got, err := g.StutterModel()
	assert.NoError(t, err)
	expect.EQ(t, got, m)
}

func TestSetAllelePriors(t *testing.T) {
	g := testGenotyper(t, [][]int{{12, 16}}, [][]float64{zeros(2)}, [][]float64{zeros(2)},
		[]string{"s0"}, 4, 12)
	expect.True(t, g.SetAllelePriors([]float64{0}) != nil)            // wrong size
	expect.True(t, g.SetAllelePriors([]float64{0, 0, 0, 0.5}) != nil) // positive entry
	expect.True(t, g.SetAllelePriors([]float64{0, 0, 0, math.NaN()}) != nil)

	priors := []float64{math.Log(0.25), math.Log(0.25), math.Log(0.25), math.Log(0.25)}
	assert.NoError(t, g.SetAllelePriors(priors))
}
