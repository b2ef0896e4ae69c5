package vcfout

import (
	"bytes"
	"strings"
	"testing"

	"github.com/strbio/str/genotype"
	"github.com/strbio/str/stutter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlleleSeq(t *testing.T) {
	const ref = "ACACACAC" // 4 motif copies, motif AC

	seq, err := alleleSeq(ref, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, ref, seq)

	seq, err = alleleSeq(ref, -2, 2)
	require.NoError(t, err)
	assert.Equal(t, "ACACAC", seq)

	seq, err = alleleSeq(ref, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, "ACACACACACAC", seq)

	// Out-of-frame expansion appends a partial motif copy.
	seq, err = alleleSeq(ref, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "ACACACACACA", seq)

	// Contraction past the tract is an error.
	_, err = alleleSeq(ref, -8, 2)
	require.Error(t, err)

	_, err = alleleSeq("A", 2, 2)
	require.Error(t, err)
}

func testGenotyper(t *testing.T) *genotype.Genotyper {
	t.Helper()
	const weak = -20.0
	g, err := genotype.New("chr4", 999, 1007,
		[][]int{
			{8, 8, 8, 8},
			{8, 8, 10, 10},
		},
		[][]float64{
			{0, 0, 0, 0},
			{0, 0, weak, weak},
		},
		[][]float64{
			{0, 0, 0, 0},
			{weak, weak, 0, 0},
		},
		[]string{"hom", "het"}, 2, 8, genotype.DefaultOpts)
	require.NoError(t, err)
	m, err := stutter.New(0.5, 1e-4, 1e-4, 0.5, 1e-4, 1e-4, 2)
	require.NoError(t, err)
	require.NoError(t, g.SetStutterModel(m))
	require.NoError(t, g.Genotype(false))
	return g
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, []string{"hom", "het"}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, "##fileformat=VCFv4.1", lines[0])
	assert.Equal(t, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\thom\thet", lines[len(lines)-1])
}

func TestWriteRecord(t *testing.T) {
	g := testGenotyper(t)
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, g, "ACACACAC"))

	fields := strings.Split(strings.TrimRight(buf.String(), "\n"), "\t")
	require.Len(t, fields, 9+2)
	assert.Equal(t, "chr4", fields[0])
	assert.Equal(t, "1000", fields[1]) // 1-based POS
	assert.Equal(t, "ACACACAC", fields[3])
	assert.Equal(t, "ACACACACAC", fields[4]) // the 10 bp allele
	assert.Contains(t, fields[7], "MOTIF=2")
	assert.Contains(t, fields[7], "BPDIFFS=2")
	assert.Equal(t, "GT:Q:DP", fields[8])

	hom := fields[9+g.SampleIndex("hom")]
	het := fields[9+g.SampleIndex("het")]
	assert.True(t, strings.HasPrefix(hom, "0|0:"), hom)
	assert.True(t, strings.HasPrefix(het, "0|1:") || strings.HasPrefix(het, "1|0:"), het)
	assert.True(t, strings.HasSuffix(hom, ":4"), hom)
	assert.True(t, strings.HasSuffix(het, ":4"), het)
}

func TestWriteRecordErrors(t *testing.T) {
	g := testGenotyper(t)
	var buf bytes.Buffer
	// Reference sequence length must match the reference allele size.
	require.Error(t, WriteRecord(&buf, g, "ACAC"))
}
