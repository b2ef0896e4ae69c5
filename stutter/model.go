// Package stutter models PCR stutter noise at an STR locus: the distribution
// of the signed bp difference between a read's observed repeat length and the
// underlying allele length.
//
// The distribution has three parts. A point mass at zero (no stutter), an
// in-frame component over nonzero multiples of the repeat motif length, and
// an out-of-frame component over the remaining shifts. Each nonzero component
// decays geometrically with the shift magnitude and splits its mass between
// expansions (up) and contractions (down).
package stutter

import (
	"fmt"
	"math"
)

// Model holds the stutter parameters for one locus. A Model is immutable
// after construction; training code builds a replacement Model and swaps it
// in rather than mutating one in place.
type Model struct {
	// InGeom is the per-step continuation parameter of the in-frame
	// geometric decay: an in-frame shift of k motif units has probability
	// proportional to InGeom*(1-InGeom)^(k-1).
	InGeom float64
	// InUp and InDown are the total probabilities of in-frame expansion and
	// contraction.
	InUp, InDown float64
	// OutGeom, OutUp, and OutDown mirror the in-frame parameters for shifts
	// that are not a multiple of the motif length. The out-of-frame decay is
	// per bp rather than per motif unit.
	OutGeom        float64
	OutUp, OutDown float64
	// MotifLen is the repeat unit length in bp. Fixed per locus.
	MotifLen int

	logNoStutter float64
	logInUp      float64
	logInDown    float64
	logInGeom    float64
	logInCont    float64 // log(1-InGeom)
	logOutUp     float64
	logOutDown   float64
	logOutGeom   float64
	logOutCont   float64 // log(1-OutGeom)
}

// New validates the six stutter parameters and returns the corresponding
// Model. The up/down masses must be positive and leave room for the
// no-stutter mass, and the geometric rates must lie strictly inside (0, 1)
// so that every shift magnitude keeps a finite log probability.
func New(inGeom, inUp, inDown, outGeom, outUp, outDown float64, motifLen int) (*Model, error) {
	if motifLen <= 0 {
		return nil, fmt.Errorf("stutter: motif length must be positive, got %d", motifLen)
	}
	for _, g := range []float64{inGeom, outGeom} {
		if !(g > 0.0 && g < 1.0) {
			return nil, fmt.Errorf("stutter: geometric parameters must be in (0, 1), got in=%v out=%v", inGeom, outGeom)
		}
	}
	for _, p := range []float64{inUp, inDown, outUp, outDown} {
		if !(p > 0.0 && p < 1.0) {
			return nil, fmt.Errorf("stutter: up/down probabilities must be in (0, 1), got in=%v/%v out=%v/%v",
				inUp, inDown, outUp, outDown)
		}
	}
	noStutter := 1.0 - inUp - inDown - outUp - outDown
	if noStutter <= 0.0 {
		return nil, fmt.Errorf("stutter: up/down probabilities sum to %v >= 1", inUp+inDown+outUp+outDown)
	}
	m := &Model{
		InGeom:   inGeom,
		InUp:     inUp,
		InDown:   inDown,
		OutGeom:  outGeom,
		OutUp:    outUp,
		OutDown:  outDown,
		MotifLen: motifLen,

		logNoStutter: math.Log(noStutter),
		logInUp:      math.Log(inUp),
		logInDown:    math.Log(inDown),
		logInGeom:    math.Log(inGeom),
		logInCont:    math.Log1p(-inGeom),
		logOutUp:     math.Log(outUp),
		logOutDown:   math.Log(outDown),
		logOutGeom:   math.Log(outGeom),
		logOutCont:   math.Log1p(-outGeom),
	}
	return m, nil
}

// Default returns the weakly informative seed model used when training
// starts without an injected model: rare stutter, contraction-biased
// in-frame, fast out-of-frame decay.
func Default(motifLen int) *Model {
	m, err := New(0.8, 0.05, 0.10, 0.9, 0.01, 0.01, motifLen)
	if err != nil {
		panic(err) // fixed constants, cannot fail
	}
	return m
}

// LogProb returns the log probability of observing a read whose repeat
// length differs from the underlying allele by shift bp. The result is
// always finite and <= 0.
func (m *Model) LogProb(shift int) float64 {
	if shift == 0 {
		return m.logNoStutter
	}
	if shift%m.MotifLen == 0 {
		k := shift / m.MotifLen
		if k > 0 {
			return m.logInUp + m.logInGeom + float64(k-1)*m.logInCont
		}
		return m.logInDown + m.logInGeom + float64(-k-1)*m.logInCont
	}
	if shift > 0 {
		return m.logOutUp + m.logOutGeom + float64(shift-1)*m.logOutCont
	}
	return m.logOutDown + m.logOutGeom + float64(-shift-1)*m.logOutCont
}

// String renders the parameters in a fixed order for logging and VCF INFO
// fields.
func (m *Model) String() string {
	return fmt.Sprintf("inframe(geom=%g,up=%g,down=%g) outframe(geom=%g,up=%g,down=%g) motif=%d",
		m.InGeom, m.InUp, m.InDown, m.OutGeom, m.OutUp, m.OutDown, m.MotifLen)
}
