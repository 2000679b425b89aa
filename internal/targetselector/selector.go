// Package targetselector ranks candidate targets by visibility, unobserved
// bandwidth, and merit, combining weighted scoring factors multiplicatively
// over the sky-position domain.
package targetselector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/pkg/obsmodel"
)

// Catalog is the minimal persistence surface the selector needs; satisfied
// by *persistence.Store in production and a fake in tests.
type Catalog interface {
	TargetByID(ctx context.Context, targetID int64) (obsmodel.TargetRecord, error)
}

// VisibilityPolicy computes a target's visibility at the configured site;
// satisfied by internal/astro in production.
type VisibilityPolicy interface {
	Visibility(ctx context.Context, t obsmodel.TargetRecord, at float64) obsmodel.Visibility
	AngularSeparationRads(a, b obsmodel.TargetRecord, at float64) float64
	DistanceLightYears(t obsmodel.TargetRecord) float64
	InAvoidanceZone(ctx context.Context, t obsmodel.TargetRecord, at float64, cones obsmodel.AvoidanceCones) bool
}

// MeritFactor scores a candidate target; factors combine multiplicatively.
type MeritFactor func(t obsmodel.TargetRecord) float64

// Constraints holds the hard limits and tunables the selector enforces.
type Constraints struct {
	SetupTime                                                                     float64 // seconds
	DataCollectionLength                                                          float64 // seconds
	MinBeamSepFactor                                                              float64
	SynthesizedBeamsizeRads                                                       float64
	SmallestDetectorBandwidthMHz                                                  float64
	MinUsableRemainingBandwidthMHz                                                float64
	MinDXPercent                                                                  float64
	TotalBandwidthMHz                                                             float64
	Band                                                                          obsmodel.ObsRange // observable sky-frequency band
	MaxDistanceLightYears                                                         float64
	DecLowerLimitRads, DecUpperLimitRads                                          float64
	SunAvoidanceRads, MoonAvoidanceRads, GeosatAvoidanceRads, ZenithAvoidanceRads float64
	WaitTargetCompleteSkips                                                       int
}

func (c Constraints) cones() obsmodel.AvoidanceCones {
	return obsmodel.AvoidanceCones{
		SunRads:    c.SunAvoidanceRads,
		MoonRads:   c.MoonAvoidanceRads,
		GeosatRads: c.GeosatAvoidanceRads,
		ZenithRads: c.ZenithAvoidanceRads,
	}
}

// Candidate is one scored target.
type Candidate struct {
	Target obsmodel.TargetRecord
	Score  float64
}

// Selection is the target selector's output: the primary target plus
// whatever other beams ride along with it.
type Selection struct {
	Primary    obsmodel.TargetRecord
	FirstBeam  obsmodel.TargetRecord
	OtherBeams []obsmodel.TargetRecord
	Range      obsmodel.ObsRange
}

// Selector ranks and picks observing targets from a catalog. Safe for
// concurrent use: the rotate timer and the strategy worker both touch the
// skip/observed bookkeeping.
type Selector struct {
	catalog      Catalog
	visibility   VisibilityPolicy
	constraints  Constraints
	meritFactors []MeritFactor

	mu          sync.Mutex
	skipCounts  map[int64]int
	observedMHz map[int64]float64 // bandwidth already observed per target
}

func New(catalog Catalog, visibility VisibilityPolicy, c Constraints, factors ...MeritFactor) *Selector {
	return &Selector{
		catalog:      catalog,
		visibility:   visibility,
		constraints:  c,
		meritFactors: factors,
		skipCounts:   make(map[int64]int),
		observedMHz:  make(map[int64]float64),
	}
}

// MarkObserved credits widthMHz of observed bandwidth against a target,
// called by the strategy when an activity covering it completes. Remaining
// unobserved bandwidth shrinks accordingly on the next selection pass.
func (s *Selector) MarkObserved(targetID int64, widthMHz float64) {
	if widthMHz <= 0 {
		return
	}
	s.mu.Lock()
	s.observedMHz[targetID] += widthMHz
	s.mu.Unlock()
}

// RemainingBandwidthMHz reports the target's unobserved bandwidth, or the
// full total for a target never observed.
func (s *Selector) RemainingBandwidthMHz(targetID int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraints.TotalBandwidthMHz - s.observedMHz[targetID]
}

// eligible applies every hard constraint except pairwise separation, which
// is evaluated across the whole selected set afterward.
func (s *Selector) eligible(ctx context.Context, t obsmodel.TargetRecord, at float64) bool {
	c := s.constraints
	vis := s.visibility.Visibility(ctx, t, at)
	setup := time.Duration(c.SetupTime * float64(time.Second))
	dataColl := time.Duration(c.DataCollectionLength * float64(time.Second))
	if !vis.Available(setup, dataColl) {
		return false
	}
	if t.Dec2000Rads < c.DecLowerLimitRads || t.Dec2000Rads > c.DecUpperLimitRads {
		return false
	}
	if c.MaxDistanceLightYears > 0 && s.visibility.DistanceLightYears(t) > c.MaxDistanceLightYears {
		return false
	}
	if s.visibility.InAvoidanceZone(ctx, t, at, c.cones()) {
		return false
	}
	if c.TotalBandwidthMHz > 0 {
		remaining := s.RemainingBandwidthMHz(t.TargetID)
		if remaining < c.SmallestDetectorBandwidthMHz ||
			remaining < c.MinUsableRemainingBandwidthMHz ||
			remaining < c.MinDXPercent*c.TotalBandwidthMHz {
			return false
		}
	}
	return true
}

// Candidates ranks every target in ids by merit, filtering ones that fail a
// hard constraint. A target ID may be skipped WaitTargetCompleteSkips times
// before being forced; a WaitTargetCompleteSkips of 0 never forces a target.
func (s *Selector) Candidates(ctx context.Context, ids []int64, at float64) ([]Candidate, error) {
	var out []Candidate
	for _, id := range ids {
		t, err := s.catalog.TargetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		forced := s.constraints.WaitTargetCompleteSkips > 0 && s.skipCounts[id] >= s.constraints.WaitTargetCompleteSkips
		s.mu.Unlock()
		if !forced && !s.eligible(ctx, t, at) {
			s.mu.Lock()
			s.skipCounts[id]++
			s.mu.Unlock()
			continue
		}
		score := 1.0
		for _, f := range s.meritFactors {
			score *= f(t)
		}
		out = append(out, Candidate{Target: t, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Select picks a primary plus per-beam targets satisfying pairwise
// separation, returning InvalidTarget if nothing qualifies. The chosen
// ObsRange is the configured observable band; the per-target
// remaining-bandwidth constraint has already been applied in eligible.
func (s *Selector) Select(ctx context.Context, candidateIDs []int64, nBeams int, at float64) (Selection, error) {
	ranked, err := s.Candidates(ctx, candidateIDs, at)
	if err != nil {
		return Selection{}, err
	}
	if len(ranked) == 0 {
		return Selection{}, obserr.New(obserr.InvalidTarget, "no eligible targets in candidate set")
	}

	minSep := s.constraints.MinBeamSepFactor * s.constraints.SynthesizedBeamsizeRads
	chosen := []obsmodel.TargetRecord{ranked[0].Target}
	for _, cand := range ranked[1:] {
		if len(chosen) >= nBeams {
			break
		}
		ok := true
		for _, c := range chosen {
			if s.visibility.AngularSeparationRads(cand.Target, c, at) < minSep {
				ok = false
				break
			}
		}
		if ok {
			chosen = append(chosen, cand.Target)
		}
	}

	sel := Selection{
		Primary:   chosen[0],
		FirstBeam: chosen[0],
		Range:     s.constraints.Band,
	}
	if len(chosen) > 1 {
		sel.OtherBeams = chosen[1:]
	}
	return sel, nil
}

// RotatePrimary resets id's skip count, so a still-ineligible id is skipped
// WaitTargetCompleteSkips times again before being forced; ranking is not
// changed. Used by the primary-target-id rotation timer.
func (s *Selector) RotatePrimary(id int64) {
	s.mu.Lock()
	s.skipCounts[id] = 0
	s.mu.Unlock()
}
