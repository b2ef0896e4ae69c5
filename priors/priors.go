// Package priors derives per-sample genotype log priors for an STR locus
// from a population call set. The call set is a VCF whose record at the
// locus carries per-allele frequencies in its AF INFO field; those
// frequencies are mapped onto the genotyper's allele catalog by bp length
// and expanded into the ordered-pair prior tensor the genotyper consumes.
package priors

import (
	"bufio"
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bgzf"
	"github.com/pkg/errors"
)

// floorFreq is assigned to catalog alleles absent from the call set, so
// that an allele observed in the sample's reads is never given a zero
// prior outright. The frequency vector is renormalized afterwards.
const floorFreq = 1e-4

// LogAllelePriors reads the call set at path, locates the record at
// (chrom, start) (start is 0-based; VCF POS is 1-based), and returns the
// (allele1, allele2, sample) log prior tensor for the given allele catalog,
// replicated across numSamples samples. alleleSizes[0] must be the
// reference allele's bp length.
func LogAllelePriors(ctx context.Context, path, chrom string, start uint32,
	alleleSizes []int, numSamples int) ([]float64, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "priors: open %s", path)
	}
	defer in.Close(ctx) // nolint: errcheck

	var r io.Reader = in.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		bgzfReader, err := bgzf.NewReader(r, 1)
		if err != nil {
			return nil, errors.Wrapf(err, "priors: bgzf %s", path)
		}
		defer bgzfReader.Close() // nolint: errcheck
		r = bgzfReader
	}
	freqs, err := alleleFreqs(r, chrom, start, alleleSizes)
	if err != nil {
		return nil, errors.Wrapf(err, "priors: %s", path)
	}
	return pairTensor(freqs, numSamples), nil
}

// alleleFreqs scans VCF text for the record at (chrom, start) and returns
// the frequency of each catalog allele, normalized to sum to 1.
func alleleFreqs(r io.Reader, chrom string, start uint32, alleleSizes []int) ([]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := strings.SplitN(line, "\t", 9)
		if len(fields) < 8 {
			return nil, errors.Errorf("malformed VCF line: %q", line)
		}
		if fields[0] != chrom {
			continue
		}
		pos, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bad POS in line %q", line)
		}
		if pos == 0 { // POS is 1-based
			return nil, errors.Errorf("POS must be positive in line %q", line)
		}
		if uint32(pos-1) != start {
			continue
		}
		return recordFreqs(fields, alleleSizes)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.Errorf("no call set record at %s:%d", chrom, start+1)
}

func recordFreqs(fields []string, alleleSizes []int) ([]float64, error) {
	ref, alts, info := fields[3], fields[4], fields[7]
	var afs []float64
	for _, kv := range strings.Split(info, ";") {
		if !strings.HasPrefix(kv, "AF=") {
			continue
		}
		for _, tok := range strings.Split(kv[len("AF="):], ",") {
			af, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad AF value %q", tok)
			}
			afs = append(afs, af)
		}
	}
	if afs == nil {
		return nil, errors.New("call set record has no AF INFO field")
	}
	altAlleles := strings.Split(alts, ",")
	if len(altAlleles) != len(afs) {
		return nil, errors.Errorf("%d ALT alleles but %d AF values", len(altAlleles), len(afs))
	}

	// Frequency per bp-length offset from the reference allele. The
	// reference's own frequency is the complement of the ALT frequencies.
	refFreq := 1.0
	freqByDiff := map[int]float64{}
	for i, alt := range altAlleles {
		freqByDiff[len(alt)-len(ref)] += afs[i]
		refFreq -= afs[i]
	}
	if refFreq > 0 {
		freqByDiff[0] += refFreq
	}

	freqs := make([]float64, len(alleleSizes))
	total := 0.0
	for i, size := range alleleSizes {
		f, ok := freqByDiff[size-alleleSizes[0]]
		if !ok || f <= 0 {
			f = floorFreq
		}
		freqs[i] = f
		total += f
	}
	for i := range freqs {
		freqs[i] /= total
	}
	return freqs, nil
}

// pairTensor expands per-allele frequencies into the ordered-pair log prior
// tensor, identical for every sample.
func pairTensor(freqs []float64, numSamples int) []float64 {
	n := len(freqs)
	logFreqs := make([]float64, n)
	for i, f := range freqs {
		logFreqs[i] = math.Log(f)
	}
	tensor := make([]float64, n*n*numSamples)
	for a1 := 0; a1 < n; a1++ {
		for a2 := 0; a2 < n; a2++ {
			lp := logFreqs[a1] + logFreqs[a2]
			base := (a1*n + a2) * numSamples
			for s := 0; s < numSamples; s++ {
				tensor[base+s] = lp
			}
		}
	}
	return tensor
}
