// Package readset reads per-read STR observations from a TSV file. Each row
// carries the owning sample, the read's observed repeat length in bp, and
// its two SNP phasing log likelihoods; rows are grouped per sample in order
// of first appearance, matching the nested inputs the genotyper constructor
// takes.
package readset

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// ReadSet holds the parallel per-sample observation lists for one locus.
type ReadSet struct {
	// SampleNames lists samples in order of first appearance in the file.
	SampleNames []string
	// BPs[i][j] is the observed repeat length of sample i's j-th read.
	BPs [][]int
	// LogP1[i][j] and LogP2[i][j] are the read's phasing log likelihoods.
	LogP1, LogP2 [][]float64
}

type row struct {
	Sample string  `tsv:"SAMPLE"`
	BPs    int     `tsv:"BPS"`
	LogP1  float64 `tsv:"LOGP1"`
	LogP2  float64 `tsv:"LOGP2"`
}

// Read parses the observation TSV at path. The file must start with a
// header row naming the SAMPLE, BPS, LOGP1 and LOGP2 columns.
func Read(ctx context.Context, path string) (*ReadSet, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "readset: open %s", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	rs, err := parse(in.Reader(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "readset: read %s", path)
	}
	return rs, nil
}

func parse(in io.Reader) (*ReadSet, error) {
	r := tsv.NewReader(in)
	r.HasHeaderRow = true
	r.UseHeaderNames = true

	rs := &ReadSet{}
	indices := map[string]int{}
	nRow := 0
	for {
		var rec row
		if err := r.Read(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "row %d", nRow)
		}
		nRow++
		if rec.LogP1 > 0.0 || rec.LogP2 > 0.0 {
			return nil, errors.Errorf("row %d: phasing log likelihoods must be <= 0, got %v/%v",
				nRow, rec.LogP1, rec.LogP2)
		}
		i, ok := indices[rec.Sample]
		if !ok {
			i = len(rs.SampleNames)
			indices[rec.Sample] = i
			rs.SampleNames = append(rs.SampleNames, rec.Sample)
			rs.BPs = append(rs.BPs, nil)
			rs.LogP1 = append(rs.LogP1, nil)
			rs.LogP2 = append(rs.LogP2, nil)
		}
		rs.BPs[i] = append(rs.BPs[i], rec.BPs)
		rs.LogP1[i] = append(rs.LogP1[i], rec.LogP1)
		rs.LogP2[i] = append(rs.LogP2[i], rec.LogP2)
	}
	if nRow == 0 {
		return nil, errors.New("no reads found")
	}
	return rs, nil
}
