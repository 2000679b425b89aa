// Package astro is a pluggable stand-in for a site-survey astronomy
// library: a set of pure rise/set and separation functions the core calls
// without caring how they're implemented. It satisfies
// targetselector.VisibilityPolicy with geometrically honest but
// deliberately simplified formulas; a real deployment swaps this package
// for a binding to an actual ephemeris/rise-set library without touching
// any caller.
package astro

import (
	"context"
	"math"
	"time"

	"github.com/atasvc/sonata/pkg/obsmodel"
)

// Site is the observer's location, the inputs every pure function below
// needs.
type Site struct {
	LongitudeRads float64
	LatitudeRads  float64
	HorizonRads   float64
}

// Library implements targetselector.VisibilityPolicy with plain spherical
// trigonometry. Proper motion is applied as a linear offset from J2000;
// parallax and nutation corrections are not applied.
type Library struct {
	Site Site
}

func New(site Site) *Library { return &Library{Site: site} }

// currentDecRads applies proper motion only, as a flat epoch-linear offset
// (parallax is not applied); moving targets with an ephemeris file are out of scope here and
// resolved by whatever supplies EphemerisFile.
func (l *Library) currentDecRads(t obsmodel.TargetRecord, atUnixSec float64) float64 {
	const julianYearSecs = 365.25 * 86400
	const j2000Unix = 946728000.0
	years := (atUnixSec - j2000Unix) / julianYearSecs
	return t.Dec2000Rads + t.PMDec*years
}

func (l *Library) currentRARads(t obsmodel.TargetRecord, atUnixSec float64) float64 {
	const julianYearSecs = 365.25 * 86400
	const j2000Unix = 946728000.0
	years := (atUnixSec - j2000Unix) / julianYearSecs
	return t.RA2000Rads + t.PMRA*years
}

// hourAngle returns the target's hour angle at atUnixSec, a crude but
// directionally correct sidereal approximation sufficient for rise/set and
// horizon-crossing checks.
func (l *Library) hourAngle(raRads float64, atUnixSec float64) float64 {
	const siderealDaySecs = 86164.0905
	lst := math.Mod((atUnixSec/siderealDaySecs)*2*math.Pi+l.Site.LongitudeRads, 2*math.Pi)
	return lst - raRads
}

// elevationRads computes the target's elevation above the horizon.
func (l *Library) elevationRads(decRads, hourAngleRads float64) float64 {
	lat := l.Site.LatitudeRads
	sinEl := math.Sin(decRads)*math.Sin(lat) + math.Cos(decRads)*math.Cos(lat)*math.Cos(hourAngleRads)
	return math.Asin(clamp(sinEl, -1, 1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Visibility implements targetselector.VisibilityPolicy.
func (l *Library) Visibility(ctx context.Context, t obsmodel.TargetRecord, atUnixSec float64) obsmodel.Visibility {
	dec := l.currentDecRads(t, atUnixSec)
	ra := l.currentRARads(t, atUnixSec)
	ha := l.hourAngle(ra, atUnixSec)
	el := l.elevationRads(dec, ha)
	above := el > l.Site.HorizonRads

	setHA := l.hourAngleAtHorizon(dec)
	remaining := time.Duration(0)
	if above && setHA > 0 {
		const siderealRadsPerSec = 2 * math.Pi / 86164.0905
		remaining = time.Duration(((setHA - ha) / siderealRadsPerSec) * float64(time.Second))
		if remaining < 0 {
			remaining = 0
		}
	}
	return obsmodel.Visibility{
		AboveHorizon:    above,
		RemainingUptime: remaining,
	}
}

// hourAngleAtHorizon solves for the hour angle where elevation == horizon,
// returning a negative value if the target never clears the horizon at dec.
func (l *Library) hourAngleAtHorizon(decRads float64) float64 {
	lat := l.Site.LatitudeRads
	cosH := (math.Sin(l.Site.HorizonRads) - math.Sin(decRads)*math.Sin(lat)) / (math.Cos(decRads) * math.Cos(lat))
	if cosH < -1 || cosH > 1 {
		return -1
	}
	return math.Acos(cosH)
}

// InAvoidanceZone implements targetselector.VisibilityPolicy: true when the
// target falls inside any of the configured exclusion cones. Sun and moon
// positions use low-precision mean-element formulas; the geostationary belt
// is modeled as a declination band around the celestial equator. A real
// ephemeris library replaces all of this wholesale.
func (l *Library) InAvoidanceZone(ctx context.Context, t obsmodel.TargetRecord, atUnixSec float64, cones obsmodel.AvoidanceCones) bool {
	dec := l.currentDecRads(t, atUnixSec)
	ra := l.currentRARads(t, atUnixSec)

	if cones.ZenithRads > 0 {
		el := l.elevationRads(dec, l.hourAngle(ra, atUnixSec))
		if el > math.Pi/2-cones.ZenithRads {
			return true
		}
	}
	if cones.GeosatRads > 0 && math.Abs(dec) < cones.GeosatRads {
		return true
	}
	if cones.SunRads > 0 {
		sunRA, sunDec := sunEquatorial(atUnixSec)
		if sphericalSeparation(ra, dec, sunRA, sunDec) < cones.SunRads {
			return true
		}
	}
	if cones.MoonRads > 0 {
		moonRA, moonDec := moonEquatorial(atUnixSec)
		if sphericalSeparation(ra, dec, moonRA, moonDec) < cones.MoonRads {
			return true
		}
	}
	return false
}

const (
	j2000Unix     = 946728000.0
	obliquityRads = 23.439 * math.Pi / 180
)

// sunEquatorial returns the sun's approximate RA/dec from the standard
// low-precision mean-longitude formula (a fraction of a degree of error,
// far below any avoidance-cone radius worth configuring).
func sunEquatorial(atUnixSec float64) (raRads, decRads float64) {
	d := (atUnixSec - j2000Unix) / 86400
	meanLon := normalizeRads((280.460 + 0.9856474*d) * math.Pi / 180)
	meanAnom := normalizeRads((357.528 + 0.9856003*d) * math.Pi / 180)
	eclipticLon := meanLon + (1.915*math.Sin(meanAnom)+0.020*math.Sin(2*meanAnom))*math.Pi/180
	return equatorialFromEclipticLon(eclipticLon)
}

// moonEquatorial returns a crude moon position from its mean longitude
// alone, ignoring latitude and the major periodic terms; good to a few
// degrees, which suffices for a several-degree avoidance cone.
func moonEquatorial(atUnixSec float64) (raRads, decRads float64) {
	d := (atUnixSec - j2000Unix) / 86400
	meanLon := normalizeRads((218.316 + 13.176396*d) * math.Pi / 180)
	return equatorialFromEclipticLon(meanLon)
}

// equatorialFromEclipticLon converts an ecliptic longitude (latitude zero)
// to RA/dec using the mean obliquity.
func equatorialFromEclipticLon(lonRads float64) (raRads, decRads float64) {
	raRads = math.Atan2(math.Cos(obliquityRads)*math.Sin(lonRads), math.Cos(lonRads))
	decRads = math.Asin(math.Sin(obliquityRads) * math.Sin(lonRads))
	return raRads, decRads
}

func sphericalSeparation(raA, decA, raB, decB float64) float64 {
	cosSep := math.Sin(decA)*math.Sin(decB) + math.Cos(decA)*math.Cos(decB)*math.Cos(raA-raB)
	return math.Acos(clamp(cosSep, -1, 1))
}

func normalizeRads(r float64) float64 {
	r = math.Mod(r, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r
}

// AngularSeparationRads implements targetselector.VisibilityPolicy via the
// spherical law of cosines.
func (l *Library) AngularSeparationRads(a, b obsmodel.TargetRecord, atUnixSec float64) float64 {
	decA, decB := l.currentDecRads(a, atUnixSec), l.currentDecRads(b, atUnixSec)
	raA, raB := l.currentRARads(a, atUnixSec), l.currentRARads(b, atUnixSec)
	cosSep := math.Sin(decA)*math.Sin(decB) + math.Cos(decA)*math.Cos(decB)*math.Cos(raA-raB)
	return math.Acos(clamp(cosSep, -1, 1))
}

// DistanceLightYears implements targetselector.VisibilityPolicy using
// parallax: distance_pc = 1 / parallax_arcsec.
func (l *Library) DistanceLightYears(t obsmodel.TargetRecord) float64 {
	if t.Parallax <= 0 {
		return math.Inf(1)
	}
	const lightYearsPerParsec = 3.26156
	return (1.0 / t.Parallax) * lightYearsPerParsec
}

// SynthesizedBeamsizeRads is a pure function of aperture diameter and
// observing wavelength, used outside VisibilityPolicy for OFF-position
// placement and multi-beam separation checks.
func SynthesizedBeamsizeRads(apertureMeters, wavelengthMeters float64) float64 {
	if apertureMeters <= 0 {
		return 0
	}
	return 1.22 * wavelengthMeters / apertureMeters
}
