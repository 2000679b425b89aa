package observe

import "math"

// Candidate is one detector's signal-detection hit, the unit the secondary
// candidate-processing pass ring-broadcasts and resolves.
// Detection internals are a Non-goal; this is just enough shape to drive
// cross-beam confirmation.
type Candidate struct {
	DXName        string
	SkyFreqMHz    float64
	DriftHzPerSec float64
	PowerDB       float64

	// seenBy accumulates every detector name that reported a matching
	// candidate during the ring broadcast; resolve() reads it to classify.
	seenBy map[string]bool
}

// resolveSecondary classifies every gathered candidate as RFI (seen by more
// than one detector, so it can't be localized to a single beam) or
// confirmed-unique, updating the running
// summary.
func (a *Activity) resolveSecondary() {
	var confirmed, rfi int
	for dx, cands := range a.candidates {
		for i := range cands {
			c := &cands[i]
			if len(c.seenBy) > 1 {
				rfi++
			} else {
				confirmed++
			}
		}
		a.candidates[dx] = cands
	}
	a.mu.Lock()
	a.rec.Summary.ConfirmedCount += confirmed
	a.rec.Summary.CandidatesRFI += rfi
	a.mu.Unlock()
}

// matchToleranceMHz is the sky-frequency window two candidates from
// different detectors must fall within to count as the same signal for
// cross-beam confirmation. The real correlation (frequency *and* drift rate
// within hardware tolerance) is detector DSP internals and a Non-goal; this
// is the stand-in's frequency-only approximation.
const matchToleranceMHz = 0.01

// broadcastCandidates re-sends every detector's candidate list to every
// *other* detector for cross-beam confirmation: a
// candidate matched by sky frequency in another detector's list is marked
// seen by that detector. A candidate matched by no other detector stays
// target-unique; one seen by two or more reads as RFI in resolveSecondary.
func (a *Activity) broadcastCandidates() {
	for dx, cands := range a.candidates {
		for i := range cands {
			if cands[i].seenBy == nil {
				cands[i].seenBy = make(map[string]bool)
			}
			for otherDX, otherCands := range a.candidates {
				if otherDX == dx {
					continue
				}
				for _, oc := range otherCands {
					if math.Abs(oc.SkyFreqMHz-cands[i].SkyFreqMHz) <= matchToleranceMHz {
						cands[i].seenBy[otherDX] = true
						break
					}
				}
			}
		}
		a.candidates[dx] = cands
	}
}
