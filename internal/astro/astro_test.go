package astro

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atasvc/sonata/pkg/obsmodel"
)

func TestAngularSeparationSamePointIsZero(t *testing.T) {
	lib := New(Site{LatitudeRads: 0.7, LongitudeRads: -2.1, HorizonRads: 0.2})
	target := obsmodel.TargetRecord{RA2000Rads: 1.0, Dec2000Rads: 0.5}
	sep := lib.AngularSeparationRads(target, target, 1_700_000_000)
	assert.InDelta(t, 0, sep, 1e-9)
}

func TestAngularSeparationAntipodal(t *testing.T) {
	lib := New(Site{})
	a := obsmodel.TargetRecord{RA2000Rads: 0, Dec2000Rads: math.Pi / 2}
	b := obsmodel.TargetRecord{RA2000Rads: 0, Dec2000Rads: -math.Pi / 2}
	sep := lib.AngularSeparationRads(a, b, 1_700_000_000)
	assert.InDelta(t, math.Pi, sep, 1e-9)
}

func TestDistanceLightYearsFromParallax(t *testing.T) {
	lib := New(Site{})
	// 1 arcsec parallax => 1 parsec => 3.26156 ly.
	d := lib.DistanceLightYears(obsmodel.TargetRecord{Parallax: 1})
	assert.InDelta(t, 3.26156, d, 1e-6)
}

func TestDistanceLightYearsInfiniteForNonPositiveParallax(t *testing.T) {
	lib := New(Site{})
	assert.True(t, math.IsInf(lib.DistanceLightYears(obsmodel.TargetRecord{Parallax: 0}), 1))
	assert.True(t, math.IsInf(lib.DistanceLightYears(obsmodel.TargetRecord{Parallax: -1}), 1))
}

func TestVisibilityBelowHorizonHasNoRemainingUptime(t *testing.T) {
	lib := New(Site{LatitudeRads: 0.707, HorizonRads: 0.2})
	// A target at the opposite declination from the site latitude, sampled
	// at an hour angle that puts it well below the horizon.
	target := obsmodel.TargetRecord{RA2000Rads: 0, Dec2000Rads: -1.3}
	vis := lib.Visibility(context.Background(), target, 1_700_000_000)
	if !vis.AboveHorizon {
		assert.Equal(t, int64(0), vis.RemainingUptime.Nanoseconds())
	}
}

func TestInAvoidanceZoneGeosatBelt(t *testing.T) {
	lib := New(Site{})
	cones := obsmodel.AvoidanceCones{GeosatRads: 0.1}

	onBelt := obsmodel.TargetRecord{RA2000Rads: 2.0, Dec2000Rads: 0.05}
	offBelt := obsmodel.TargetRecord{RA2000Rads: 2.0, Dec2000Rads: 0.5}

	assert.True(t, lib.InAvoidanceZone(context.Background(), onBelt, 1_700_000_000, cones))
	assert.False(t, lib.InAvoidanceZone(context.Background(), offBelt, 1_700_000_000, cones))
}

func TestInAvoidanceZoneSunCone(t *testing.T) {
	lib := New(Site{})
	at := 1_700_000_000.0
	sunRA, sunDec := sunEquatorial(at)

	// A target placed exactly at the sun's computed position must fall inside
	// any non-zero sun cone; one a radian away in declination must not.
	atSun := obsmodel.TargetRecord{RA2000Rads: sunRA, Dec2000Rads: sunDec}
	farFromSun := obsmodel.TargetRecord{RA2000Rads: sunRA, Dec2000Rads: sunDec + 1}

	cones := obsmodel.AvoidanceCones{SunRads: 0.3}
	assert.True(t, lib.InAvoidanceZone(context.Background(), atSun, at, cones))
	assert.False(t, lib.InAvoidanceZone(context.Background(), farFromSun, at, cones))
}

func TestInAvoidanceZoneMoonCone(t *testing.T) {
	lib := New(Site{})
	at := 1_700_000_000.0
	moonRA, moonDec := moonEquatorial(at)

	atMoon := obsmodel.TargetRecord{RA2000Rads: moonRA, Dec2000Rads: moonDec}
	cones := obsmodel.AvoidanceCones{MoonRads: 0.2}
	assert.True(t, lib.InAvoidanceZone(context.Background(), atMoon, at, cones))
}

func TestInAvoidanceZoneZenithCone(t *testing.T) {
	// At latitude 0.7 a target with dec 0.7 transits through the zenith; at
	// the instant its hour angle is zero its elevation is pi/2, inside any
	// zenith cone. Find such an instant by scanning a sidereal day.
	lib := New(Site{LatitudeRads: 0.7})
	target := obsmodel.TargetRecord{RA2000Rads: 1.0, Dec2000Rads: 0.7}
	cones := obsmodel.AvoidanceCones{ZenithRads: 0.05}

	hit := false
	for sec := 0.0; sec < 86165; sec += 60 {
		if lib.InAvoidanceZone(context.Background(), target, 1_700_000_000+sec, cones) {
			hit = true
			break
		}
	}
	assert.True(t, hit, "a zenith-transiting target must enter the zenith cone once per sidereal day")
}

func TestInAvoidanceZoneAllConesDisabled(t *testing.T) {
	lib := New(Site{})
	target := obsmodel.TargetRecord{RA2000Rads: 1.0, Dec2000Rads: 0.0}
	assert.False(t, lib.InAvoidanceZone(context.Background(), target, 1_700_000_000, obsmodel.AvoidanceCones{}))
}

func TestSynthesizedBeamsizeRads(t *testing.T) {
	got := SynthesizedBeamsizeRads(100, 0.21)
	assert.InDelta(t, 1.22*0.21/100, got, 1e-12)
}

func TestSynthesizedBeamsizeRadsZeroApertureIsZero(t *testing.T) {
	assert.Equal(t, 0.0, SynthesizedBeamsizeRads(0, 0.21))
}
