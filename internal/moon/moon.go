// Package moon computes the lunar phase for arbitrary dates using mean
// synodic-month arithmetic. Accuracy is within a day, which is all a chat
// bot needs.
package moon

import (
	"fmt"
	"math"
	"time"
)

// SynodicMonth is the mean length of a lunation in days.
const SynodicMonth = 29.530588853

// epochJD is the Julian date of a reference new moon (2000-01-06 18:14 UTC).
const epochJD = 2451550.26

// Phase is one of the eight conventional lunar phases.
type Phase int

// Phases in lunation order.
const (
	NewMoon Phase = iota
	WaxingCrescent
	FirstQuarter
	WaxingGibbous
	FullMoon
	WaningGibbous
	LastQuarter
	WaningCrescent
)

var phaseNames = [...]string{
	"New Moon",
	"Waxing Crescent",
	"First Quarter",
	"Waxing Gibbous",
	"Full Moon",
	"Waning Gibbous",
	"Last Quarter",
	"Waning Crescent",
}

var phaseEmojis = [...]string{"🌑", "🌒", "🌓", "🌔", "🌕", "🌖", "🌗", "🌘"}

// Name returns the conventional English phase name.
func (p Phase) Name() string { return phaseNames[p] }

// Emoji returns the moon-phase emoji for p.
func (p Phase) Emoji() string { return phaseEmojis[p] }

// Info describes the moon on a particular date.
type Info struct {
	Phase        Phase
	Age          float64 // days since new moon
	Illumination float64 // fraction 0..1
}

// julianDay converts a time to its Julian date.
func julianDay(t time.Time) float64 {
	t = t.UTC()
	y, m, d := t.Year(), int(t.Month()), t.Day()
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4
	jd := math.Floor(365.25*float64(y+4716)) +
		math.Floor(30.6001*float64(m+1)) +
		float64(d) + float64(b) - 1524.5
	frac := (float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600) / 24
	return jd + frac
}

// At returns the lunar phase info for the given instant.
func At(t time.Time) Info {
	age := math.Mod(julianDay(t)-epochJD, SynodicMonth)
	if age < 0 {
		age += SynodicMonth
	}

	// Split the lunation into eight equal arcs centered on the cardinal
	// phases, so a date lands on "Full Moon" for roughly ±1.8 days around
	// the true full moon.
	idx := int(math.Floor(age/(SynodicMonth/8) + 0.5))
	if idx >= 8 {
		idx = 0
	}

	illum := (1 - math.Cos(2*math.Pi*age/SynodicMonth)) / 2
	return Info{Phase: Phase(idx), Age: age, Illumination: illum}
}

// Describe renders a user-facing summary line for the moon on date.
func Describe(t time.Time) string {
	info := At(t)
	return fmt.Sprintf("%s %s\nMoon age: %.1f days\nIllumination: %.0f%%",
		info.Phase.Emoji(), info.Phase.Name(), info.Age, info.Illumination*100)
}

// ParseUserDate accepts the date formats users actually type: DD.MM.YYYY,
// DD/MM/YYYY and YYYY-MM-DD. The result is midnight in loc.
func ParseUserDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"02.01.2006", "02/01/2006", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
