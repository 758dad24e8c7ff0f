// Package palette generates the set of track colours used by the map
// frontend. Candidates are sampled in HSL, skipping the blue band that would
// vanish against the sea, then thinned by greedy farthest-point selection in
// CIELAB so neighbouring tracks stay distinguishable.
package palette

import (
	"fmt"
	"math"
)

const (
	// NumColours is the size of the generated palette.
	NumColours = 64

	hueSamples = 180
	saturation = 0.92

	// Hues in this band read as sea blue and are folded past the band.
	excludeStart = 195.0
	excludeEnd   = 245.0

	// The seed colour is the candidate whose L* is closest to this.
	seedLightness = 60.0
)

var lightnessLevels = [...]float64{0.38, 0.56, 0.72}

// RGB is an 8-bit colour.
type RGB struct {
	R, G, B uint8
}

// Hex returns the colour as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

type lab struct {
	l, a, b float64
}

type candidate struct {
	rgb RGB
	lab lab
}

// TrackColours generates the palette.
func TrackColours() []RGB {
	candidates := make([]candidate, 0, hueSamples*len(lightnessLevels))
	for _, l := range lightnessLevels {
		for i := 0; i < hueSamples; i++ {
			hue := float64(i) / hueSamples * 360.0
			if hue >= excludeStart && hue <= excludeEnd {
				hue = excludeEnd + (hue - excludeStart)
			}
			hue = math.Mod(math.Mod(hue, 360.0)+360.0, 360.0)
			rgb := hslToRGB(hue, saturation, l)
			candidates = append(candidates, candidate{rgb: rgb, lab: rgbToLab(rgb)})
		}
	}

	selected := make([]candidate, 0, NumColours)

	seedIdx := 0
	minDiff := math.Inf(1)
	for idx, c := range candidates {
		if diff := math.Abs(c.lab.l - seedLightness); diff < minDiff {
			minDiff = diff
			seedIdx = idx
		}
	}
	selected = append(selected, candidates[seedIdx])
	candidates = append(candidates[:seedIdx], candidates[seedIdx+1:]...)

	for len(selected) < NumColours && len(candidates) > 0 {
		bestIdx := 0
		bestScore := -1.0
		for idx, cand := range candidates {
			minDist := math.Inf(1)
			for _, s := range selected {
				if d := labDistance(cand.lab, s.lab); d < minDist {
					minDist = d
				}
			}
			if minDist > bestScore {
				bestScore = minDist
				bestIdx = idx
			}
		}
		selected = append(selected, candidates[bestIdx])
		candidates = append(candidates[:bestIdx], candidates[bestIdx+1:]...)
	}

	colours := make([]RGB, len(selected))
	for i, c := range selected {
		colours[i] = c.rgb
	}
	return colours
}

func hslToRGB(h, s, l float64) RGB {
	h = math.Mod(h, 360.0) / 360.0

	var r, g, b float64
	if s == 0 {
		r, g, b = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		r = hueToRGB(p, q, h+1.0/3.0)
		g = hueToRGB(p, q, h)
		b = hueToRGB(p, q, h-1.0/3.0)
	}
	return RGB{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
	}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}

// rgbToLab converts sRGB to CIELAB under the D65 illuminant.
func rgbToLab(c RGB) lab {
	linear := func(v uint8) float64 {
		s := float64(v) / 255.0
		if s <= 0.04045 {
			return s / 12.92
		}
		return math.Pow((s+0.055)/1.055, 2.4)
	}
	lr, lg, lb := linear(c.R), linear(c.G), linear(c.B)

	x := lr*0.4124564 + lg*0.3575761 + lb*0.1804375
	y := lr*0.2126729 + lg*0.7151522 + lb*0.0721750
	z := lr*0.0193339 + lg*0.1191920 + lb*0.9503041

	const xn, yn, zn = 0.95047, 1.0, 1.08883
	f := func(t float64) float64 {
		if t > 0.008856 {
			return math.Cbrt(t)
		}
		return 7.787037*t + 16.0/116.0
	}
	fx, fy, fz := f(x/xn), f(y/yn), f(z/zn)

	return lab{
		l: 116*fy - 16,
		a: 500 * (fx - fy),
		b: 200 * (fy - fz),
	}
}

func labDistance(a, b lab) float64 {
	dl := a.l - b.l
	da := a.a - b.a
	db := a.b - b.b
	return math.Sqrt(dl*dl + da*da + db*db)
}
