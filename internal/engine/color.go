package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
)

// ColorStage records which generator produced a color.
type ColorStage string

const (
	ColorRandom      ColorStage = "random"
	ColorGoldenAngle ColorStage = "golden_angle"
	ColorScan        ColorStage = "scan"
)

// DefaultColorAttempts bounds rejection sampling before falling back.
const DefaultColorAttempts = 64

const (
	goldenAngle    = 137.50776405003785
	goldenPerLap   = 36
	colorSpaceSize = 1 << 24
)

// Saturation/lightness pairs for successive golden-angle laps.
var goldenLaps = [][2]float64{
	{0.65, 0.50}, {0.55, 0.40}, {0.75, 0.60},
	{0.45, 0.55}, {0.85, 0.45}, {0.60, 0.35},
	{0.70, 0.65}, {0.50, 0.50}, {0.90, 0.55},
}

// ErrPaletteExhausted is returned when every 24-bit color is already in use.
var ErrPaletteExhausted = errors.New("no unused color left")

// ColorAssigner picks "#rrggbb" colors that are not in a given in-use set.
// It samples uniformly for at most MaxAttempts tries, then walks a golden-angle
// hue sequence, then scans the color space from a random offset.
type ColorAssigner struct {
	mu          sync.Mutex
	rng         *rand.Rand
	maxAttempts int
}

// NewColorAssigner returns an assigner drawing from src. A non-positive
// maxAttempts uses DefaultColorAttempts.
func NewColorAssigner(src rand.Source, maxAttempts int) *ColorAssigner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultColorAttempts
	}
	return &ColorAssigner{rng: rand.New(src), maxAttempts: maxAttempts}
}

// Assign returns a color absent from inUse. The caller records it.
func (a *ColorAssigner) Assign(inUse map[string]bool) (string, ColorStage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for range a.maxAttempts {
		c := hexColor(a.rng.IntN(colorSpaceSize))
		if !inUse[c] {
			return c, ColorRandom, nil
		}
	}

	offset := a.rng.Float64() * 360
	for _, c := range goldenAngleColors(offset) {
		if !inUse[c] {
			return c, ColorGoldenAngle, nil
		}
	}

	start := a.rng.IntN(colorSpaceSize)
	for i := range colorSpaceSize {
		c := hexColor((start + i) % colorSpaceSize)
		if !inUse[c] {
			return c, ColorScan, nil
		}
	}
	return "", "", ErrPaletteExhausted
}

// goldenAngleColors lists the fallback sequence starting at hue offset.
func goldenAngleColors(offset float64) []string {
	out := make([]string, 0, len(goldenLaps)*goldenPerLap)
	for lap, sl := range goldenLaps {
		for i := range goldenPerLap {
			step := float64(lap*goldenPerLap + i)
			hue := math.Mod(offset+step*goldenAngle, 360)
			out = append(out, hslHex(hue, sl[0], sl[1]))
		}
	}
	return out
}

func hexColor(rgb int) string {
	return fmt.Sprintf("#%06x", rgb&0xffffff)
}

// hslHex converts hue in degrees and saturation/lightness in [0,1] to "#rrggbb".
func hslHex(h, s, l float64) string {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to := func(v float64) int { return int(math.Round((v + m) * 255)) }
	return fmt.Sprintf("#%02x%02x%02x", to(r), to(g), to(b))
}
