package stutter

import "fmt"

// Counts accumulates the weighted sufficient statistics for refitting a
// Model: for every observed shift, the caller adds the posterior credit that
// shift received. Steps are counted in motif units for in-frame shifts and
// in bp for out-of-frame shifts, so the geometric rates can be re-estimated
// by method of moments (p = total weight / weighted step total).
type Counts struct {
	Zero float64 // weight assigned to shift == 0

	InUp, InDown float64 // directional in-frame weight
	InSteps      float64 // weighted sum of |shift|/motifLen over in-frame shifts

	OutUp, OutDown float64 // directional out-of-frame weight
	OutSteps       float64 // weighted sum of |shift| over out-of-frame shifts
}

// Add credits weight w to the given bp shift.
func (c *Counts) Add(shift, motifLen int, w float64) {
	switch {
	case shift == 0:
		c.Zero += w
	case shift%motifLen == 0:
		if shift > 0 {
			c.InUp += w
			c.InSteps += w * float64(shift/motifLen)
		} else {
			c.InDown += w
			c.InSteps += w * float64(-shift/motifLen)
		}
	default:
		if shift > 0 {
			c.OutUp += w
			c.OutSteps += w * float64(shift)
		} else {
			c.OutDown += w
			c.OutSteps += w * float64(-shift)
		}
	}
}

// Fit derives a new Model from accumulated counts. A frame that received no
// weight keeps prev's parameters for that frame: its geometric rate and its
// up/down masses are carried over verbatim, and only the observed buckets
// are refit from the counts. prev supplies the motif length and must be
// non-nil.
func Fit(c Counts, prev *Model) (*Model, error) {
	if prev == nil {
		return nil, fmt.Errorf("stutter: Fit requires a previous model")
	}
	inTotal := c.InUp + c.InDown
	outTotal := c.OutUp + c.OutDown

	// Masses of the refit buckets, as fractions of the weight they received.
	// Carried-over buckets keep their old absolute mass and the refit
	// buckets split the remainder.
	carried := 0.0
	observed := c.Zero
	if inTotal > 0 {
		observed += inTotal
	} else {
		carried += prev.InUp + prev.InDown
	}
	if outTotal > 0 {
		observed += outTotal
	} else {
		carried += prev.OutUp + prev.OutDown
	}
	if observed <= 0 {
		return nil, fmt.Errorf("stutter: Fit received no weight")
	}
	scale := (1.0 - carried) / observed

	inGeom, inUp, inDown := prev.InGeom, prev.InUp, prev.InDown
	if inTotal > 0 {
		inGeom = clampGeom(inTotal / c.InSteps)
		inUp = clampMass(c.InUp * scale)
		inDown = clampMass(c.InDown * scale)
	}
	outGeom, outUp, outDown := prev.OutGeom, prev.OutUp, prev.OutDown
	if outTotal > 0 {
		outGeom = clampGeom(outTotal / c.OutSteps)
		outUp = clampMass(c.OutUp * scale)
		outDown = clampMass(c.OutDown * scale)
	}
	// If every read stuttered, the refit masses leave no room for the
	// no-stutter point mass. Scale them back so the model stays proper.
	if tot := inUp + inDown + outUp + outDown; tot >= 1.0-minMass {
		f := (1.0 - minMass) / tot
		inUp *= f
		inDown *= f
		outUp *= f
		outDown *= f
	}
	return New(inGeom, inUp, inDown, outGeom, outUp, outDown, prev.MotifLen)
}

// minMass keeps every stutter bucket strictly positive so that LogProb stays
// finite for all shifts, even when the EM weights for a direction collapse
// to zero.
const minMass = 1e-6

func clampMass(p float64) float64 {
	if p < minMass {
		return minMass
	}
	if p > 1.0-minMass {
		return 1.0 - minMass
	}
	return p
}

func clampGeom(p float64) float64 {
	if p < minMass {
		return minMass
	}
	// A rate of exactly 1 (every stutter event was a single step) would zero
	// out all larger shifts; cap it just below.
	if p > 1.0-minMass {
		return 1.0 - minMass
	}
	return p
}
