package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bgzf"
	"github.com/strbio/str/genotype"
	"github.com/strbio/str/priors"
	"github.com/strbio/str/readset"
	"github.com/strbio/str/stutter"
	"github.com/strbio/str/vcfout"
)

var (
	readsPath = flag.String("reads", "", "Input reads TSV path (SAMPLE/BPS/LOGP1/LOGP2 columns); required")
	chrom     = flag.String("chrom", "", "Locus chromosome; required")
	start     = flag.Uint("start", 0, "0-based start of the STR region")
	end       = flag.Uint("end", 0, "End of the STR region")
	refSeq    = flag.String("ref-seq", "", "Reference sequence of the STR region; its length is the reference allele size; required")
	motifLen  = flag.Int("motif-len", 0, "Repeat motif length in bp; required")

	train         = flag.Bool("train", true, "Learn the stutter model by EM before genotyping")
	maxIter       = flag.Int("max-iter", 100, "Maximum number of EM iterations")
	minAbsDelta   = flag.Float64("min-abs-ll-delta", 0.1, "Absolute log-likelihood change below which EM converges")
	minFracDelta  = flag.Float64("min-frac-ll-delta", 1e-4, "Fractional log-likelihood change below which EM converges")
	inframeGeom   = flag.Float64("inframe-pgeom", 0, "In-frame stutter geometric decay; set all six stutter flags to inject a model")
	inframeUp     = flag.Float64("inframe-up", 0, "In-frame stutter expansion probability")
	inframeDown   = flag.Float64("inframe-down", 0, "In-frame stutter contraction probability")
	outframeGeom  = flag.Float64("outframe-pgeom", 0, "Out-of-frame stutter geometric decay")
	outframeUp    = flag.Float64("outframe-up", 0, "Out-of-frame stutter expansion probability")
	outframeDown  = flag.Float64("outframe-down", 0, "Out-of-frame stutter contraction probability")
	popFreqs      = flag.Bool("pop-freqs", true, "Use learned population allele frequencies as genotype priors")
	priorsVCFPath = flag.String("priors-vcf", "", "Population call set VCF supplying per-allele-pair priors; implies -pop-freqs=false")
	outPath       = flag.String("out", "", "Output VCF path; empty writes to stdout")
	bgzip         = flag.Bool("bgzip", false, "bgzf-compress the output VCF")
	parallelism   = flag.Int("parallelism", 0, "Maximum number of concurrent EM workers; 0 = runtime.NumCPU()")
)

func strGenotypeUsage() {
	fmt.Printf("Usage: %s -reads reads.tsv -chrom chr4 -start 154587717 -end 154587753 -ref-seq <seq> -motif-len 4 [OPTIONS]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = strGenotypeUsage
	shutdown := grail.Init()
	defer shutdown()

	if *readsPath == "" || *chrom == "" || *refSeq == "" || *motifLen <= 0 {
		log.Fatalf("-reads, -chrom, -ref-seq and -motif-len are required; run with -help for usage")
	}
	ctx := vcontext.Background()

	rs, err := readset.Read(ctx, *readsPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	g, err := genotype.New(*chrom, uint32(*start), uint32(*end),
		rs.BPs, rs.LogP1, rs.LogP2, rs.SampleNames, *motifLen, len(*refSeq),
		genotype.Opts{Parallelism: *parallelism})
	if err != nil {
		log.Fatalf("%v", err)
	}

	modelInjected := false
	if *inframeGeom != 0 || *inframeUp != 0 || *inframeDown != 0 ||
		*outframeGeom != 0 || *outframeUp != 0 || *outframeDown != 0 {
		model, err := stutter.New(*inframeGeom, *inframeUp, *inframeDown,
			*outframeGeom, *outframeUp, *outframeDown, *motifLen)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := g.SetStutterModel(model); err != nil {
			log.Fatalf("%v", err)
		}
		modelInjected = true
	}
	if !*train && !modelInjected {
		log.Fatalf("-train=false requires all six stutter parameter flags")
	}

	if *train {
		converged, err := g.Train(*maxIter, *minAbsDelta, *minFracDelta)
		if err != nil {
			log.Fatalf("EM training: %v", err)
		}
		stats := g.Stats()
		if !converged {
			log.Error.Printf("%s:%d: EM did not converge within %d iterations; using last estimates",
				*chrom, *start, *maxIter)
		}
		model, _ := g.StutterModel()
		log.Printf("%s:%d: %d EM iterations, %d anomalies, stutter model %s",
			*chrom, *start, stats.Iterations, stats.Anomalies, model)
	}

	usePopFreqs := *popFreqs
	if *priorsVCFPath != "" {
		alleleSizes := make([]int, g.NumAlleles())
		for a := range alleleSizes {
			alleleSizes[a] = g.AlleleSize(a)
		}
		tensor, err := priors.LogAllelePriors(ctx, *priorsVCFPath, *chrom, uint32(*start),
			alleleSizes, g.NumSamples())
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := g.SetAllelePriors(tensor); err != nil {
			log.Fatalf("%v", err)
		}
		usePopFreqs = false
	}
	if err := g.Genotype(usePopFreqs); err != nil {
		log.Fatalf("%v", err)
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		out, err := file.Create(ctx, *outPath)
		if err != nil {
			log.Fatalf("create %s: %v", *outPath, err)
		}
		defer func() {
			if err := out.Close(ctx); err != nil {
				log.Fatalf("close %s: %v", *outPath, err)
			}
		}()
		w = out.Writer(ctx)
	}
	if *bgzip {
		bw := bgzf.NewWriter(w, runtime.NumCPU())
		defer func() {
			if err := bw.Close(); err != nil {
				log.Fatalf("close bgzf: %v", err)
			}
		}()
		w = bw
	}
	if err := vcfout.WriteHeader(w, rs.SampleNames); err != nil {
		log.Fatalf("write VCF header: %v", err)
	}
	if err := vcfout.WriteRecord(w, g, *refSeq); err != nil {
		log.Fatalf("write VCF record: %v", err)
	}
	log.Debug.Printf("exiting")
}
