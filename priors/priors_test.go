package priors

import (
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCF = `##fileformat=VCFv4.1
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
chr4	500	.	AC	A	.	.	AF=0.5
chr4	1000	.	ACACACAC	ACACAC,ACACACACAC	.	.	AF=0.2,0.3
`

func TestAlleleFreqs(t *testing.T) {
	// Catalog: ref 8 bp, then 6 bp (AF 0.2), 10 bp (AF 0.3); the 12 bp
	// allele is absent from the call set and gets the floor frequency.
	sizes := []int{8, 6, 10, 12}
	freqs, err := alleleFreqs(strings.NewReader(testVCF), "chr4", 999, sizes)
	require.NoError(t, err)
	require.Len(t, freqs, 4)

	total := 0.5 + 0.2 + 0.3 + floorFreq
	assert.InDelta(t, 0.5/total, freqs[0], 1e-12) // ref: 1 - sum(AF)
	assert.InDelta(t, 0.2/total, freqs[1], 1e-12)
	assert.InDelta(t, 0.3/total, freqs[2], 1e-12)
	assert.InDelta(t, floorFreq/total, freqs[3], 1e-12)

	sum := 0.0
	for _, f := range freqs {
		sum += f
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestAlleleFreqsNoRecord(t *testing.T) {
	_, err := alleleFreqs(strings.NewReader(testVCF), "chr5", 999, []int{8})
	require.Error(t, err)
	_, err = alleleFreqs(strings.NewReader(testVCF), "chr4", 123, []int{8})
	require.Error(t, err)
}

func TestAlleleFreqsZeroPOS(t *testing.T) {
	vcf := "chr4\t0\t.\tAC\tA\t.\t.\tAF=0.5\n"
	_, err := alleleFreqs(strings.NewReader(vcf), "chr4", 999, []int{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POS")
}

func TestAlleleFreqsNoAF(t *testing.T) {
	vcf := "chr4\t1000\t.\tAC\tA\t.\t.\tDP=10\n"
	_, err := alleleFreqs(strings.NewReader(vcf), "chr4", 999, []int{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AF")
}

func TestPairTensor(t *testing.T) {
	tensor := pairTensor([]float64{0.75, 0.25}, 2)
	require.Len(t, tensor, 2*2*2)
	// (allele1, allele2, sample) ordering; samples share the prior.
	assert.InDelta(t, math.Log(0.75)+math.Log(0.75), tensor[0], 1e-12)
	assert.InDelta(t, tensor[0], tensor[1], 1e-12)
	assert.InDelta(t, math.Log(0.75)+math.Log(0.25), tensor[2], 1e-12)
	assert.InDelta(t, math.Log(0.25)+math.Log(0.75), tensor[4], 1e-12)
	assert.InDelta(t, math.Log(0.25)+math.Log(0.25), tensor[6], 1e-12)
}

func TestLogAllelePriors(t *testing.T) {
	dir, err := ioutil.TempDir("", "priors")
	require.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	path := filepath.Join(dir, "callset.vcf")
	require.NoError(t, ioutil.WriteFile(path, []byte(testVCF), 0644))

	tensor, err := LogAllelePriors(context.Background(), path, "chr4", 999, []int{8, 6, 10}, 3)
	require.NoError(t, err)
	assert.Len(t, tensor, 3*3*3)
	for _, lp := range tensor {
		assert.True(t, lp < 0.0)
	}
}
