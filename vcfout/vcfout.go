// Package vcfout serializes STR genotype calls produced by the genotype
// package as VCF text. It consumes the genotyper's read-only posterior views
// and never mutates them.
package vcfout

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/strbio/str/genotype"
)

var headerLines = []string{
	"##fileformat=VCFv4.1",
	`##INFO=<ID=START,Number=1,Type=Integer,Description="0-based start of the STR region">`,
	`##INFO=<ID=END,Number=1,Type=Integer,Description="End of the STR region">`,
	`##INFO=<ID=MOTIF,Number=1,Type=Integer,Description="Repeat motif length in bp">`,
	`##INFO=<ID=INFRAME_PGEOM,Number=1,Type=Float,Description="Geometric decay of in-frame stutter">`,
	`##INFO=<ID=INFRAME_UP,Number=1,Type=Float,Description="Probability of in-frame stutter expansion">`,
	`##INFO=<ID=INFRAME_DOWN,Number=1,Type=Float,Description="Probability of in-frame stutter contraction">`,
	`##INFO=<ID=OUTFRAME_PGEOM,Number=1,Type=Float,Description="Geometric decay of out-of-frame stutter">`,
	`##INFO=<ID=OUTFRAME_UP,Number=1,Type=Float,Description="Probability of out-of-frame stutter expansion">`,
	`##INFO=<ID=OUTFRAME_DOWN,Number=1,Type=Float,Description="Probability of out-of-frame stutter contraction">`,
	`##INFO=<ID=BPDIFFS,Number=A,Type=Integer,Description="bp difference of each ALT allele from REF">`,
	`##FORMAT=<ID=GT,Number=1,Type=String,Description="Phased genotype">`,
	`##FORMAT=<ID=Q,Number=1,Type=Float,Description="Posterior probability of the genotype">`,
	`##FORMAT=<ID=DP,Number=1,Type=Integer,Description="Number of reads used">`,
}

// WriteHeader emits the VCF header, including one genotype column per
// sample.
func WriteHeader(w io.Writer, sampleNames []string) error {
	tsvw := tsv.NewWriter(w)
	for _, line := range headerLines {
		tsvw.WriteString(line)
		if err := tsvw.EndLine(); err != nil {
			return err
		}
	}
	tsvw.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT")
	for _, name := range sampleNames {
		tsvw.WriteString(name)
	}
	if err := tsvw.EndLine(); err != nil {
		return err
	}
	return tsvw.Flush()
}

// WriteRecord emits one VCF line for the genotyper's locus. refSeq is the
// reference sequence of the STR region; alternative alleles are synthesized
// from it by expanding or contracting the repeat tract. The genotyper's
// posteriors must be current (Genotype or Train must have run).
func WriteRecord(w io.Writer, g *genotype.Genotyper, refSeq string) error {
	model, err := g.StutterModel()
	if err != nil {
		return err
	}
	if len(refSeq) != g.AlleleSize(0) {
		return fmt.Errorf("vcfout: reference sequence is %d bp but the reference allele is %d bp",
			len(refSeq), g.AlleleSize(0))
	}

	alleles := make([]string, g.NumAlleles())
	bpDiffs := make([]string, 0, g.NumAlleles()-1)
	for a := 0; a < g.NumAlleles(); a++ {
		seq, err := alleleSeq(refSeq, g.AlleleSize(a)-g.AlleleSize(0), g.MotifLen())
		if err != nil {
			return err
		}
		alleles[a] = seq
		if a > 0 {
			bpDiffs = append(bpDiffs, strconv.Itoa(g.AlleleSize(a)-g.AlleleSize(0)))
		}
	}
	alt := "."
	if len(alleles) > 1 {
		alt = strings.Join(alleles[1:], ",")
	}

	info := fmt.Sprintf("START=%d;END=%d;MOTIF=%d;INFRAME_PGEOM=%s;INFRAME_UP=%s;INFRAME_DOWN=%s;OUTFRAME_PGEOM=%s;OUTFRAME_UP=%s;OUTFRAME_DOWN=%s",
		g.Start(), g.End(), g.MotifLen(),
		fmtFloat(model.InGeom), fmtFloat(model.InUp), fmtFloat(model.InDown),
		fmtFloat(model.OutGeom), fmtFloat(model.OutUp), fmtFloat(model.OutDown))
	if len(bpDiffs) > 0 {
		info += ";BPDIFFS=" + strings.Join(bpDiffs, ",")
	}

	tsvw := tsv.NewWriter(w)
	tsvw.WriteString(g.Chrom())
	tsvw.WriteUint32(g.Start() + 1) // POS is 1-based in VCF text
	tsvw.WriteString(".")
	tsvw.WriteString(alleles[0])
	tsvw.WriteString(alt)
	tsvw.WriteString(".")
	tsvw.WriteString(".")
	tsvw.WriteString(info)
	tsvw.WriteString("GT:Q:DP")
	for s := 0; s < g.NumSamples(); s++ {
		a1, a2, logPost := g.MaxPosteriorPair(s)
		start, end := g.SampleReadRange(s)
		tsvw.WriteString(fmt.Sprintf("%d|%d:%s:%d", a1, a2, fmtFloat(math.Exp(logPost)), end-start))
	}
	if err := tsvw.EndLine(); err != nil {
		return err
	}
	return tsvw.Flush()
}

// alleleSeq derives an allele's sequence from the reference STR sequence.
// Contractions truncate the tract from its right end; expansions extend it
// by cycling the final motif copy, so out-of-frame diffs yield partial
// copies.
func alleleSeq(refSeq string, bpDiff, motifLen int) (string, error) {
	switch {
	case bpDiff == 0:
		return refSeq, nil
	case bpDiff < 0:
		if len(refSeq)+bpDiff < 1 {
			return "", fmt.Errorf("vcfout: allele contraction of %d bp exceeds the %d bp reference tract",
				-bpDiff, len(refSeq))
		}
		return refSeq[:len(refSeq)+bpDiff], nil
	default:
		if len(refSeq) < motifLen {
			return "", fmt.Errorf("vcfout: reference tract %q is shorter than the %d bp motif", refSeq, motifLen)
		}
		motif := refSeq[len(refSeq)-motifLen:]
		var b strings.Builder
		b.WriteString(refSeq)
		for i := 0; i < bpDiff; i++ {
			b.WriteByte(motif[i%motifLen])
		}
		return b.String(), nil
	}
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
