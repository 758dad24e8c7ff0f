package palette

import (
	"math"
	"regexp"
	"testing"
)

func TestTrackColoursCount(t *testing.T) {
	colours := TrackColours()
	if len(colours) != NumColours {
		t.Fatalf("TrackColours() returned %d colours, want %d", len(colours), NumColours)
	}
}

func TestTrackColoursDeterministic(t *testing.T) {
	a := TrackColours()
	b := TrackColours()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("palette not deterministic at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestTrackColoursDistinct(t *testing.T) {
	colours := TrackColours()
	seen := make(map[RGB]int, len(colours))
	for i, c := range colours {
		if j, dup := seen[c]; dup {
			t.Errorf("colour %s appears at both %d and %d", c.Hex(), j, i)
		}
		seen[c] = i
	}

	// Farthest-point selection should keep every pair visibly apart.
	for i := range colours {
		for j := i + 1; j < len(colours); j++ {
			d := labDistance(rgbToLab(colours[i]), rgbToLab(colours[j]))
			if d < 5 {
				t.Errorf("colours %s and %s too close in Lab space (%.2f)", colours[i].Hex(), colours[j].Hex(), d)
			}
		}
	}
}

func TestTrackColoursAvoidBlueBand(t *testing.T) {
	for _, c := range TrackColours() {
		h := hueOf(c)
		if h > 195 && h < 245 {
			t.Errorf("colour %s has hue %.1f inside the excluded blue band", c.Hex(), h)
		}
	}
}

func TestHex(t *testing.T) {
	if got := (RGB{R: 255, G: 0, B: 16}).Hex(); got != "#ff0010" {
		t.Errorf("Hex() = %q, want %q", got, "#ff0010")
	}
	hexRe := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for _, c := range TrackColours() {
		if !hexRe.MatchString(c.Hex()) {
			t.Errorf("Hex() = %q is not a lowercase hex colour", c.Hex())
		}
	}
}

func TestHSLToRGB(t *testing.T) {
	tests := []struct {
		h, s, l float64
		want    RGB
	}{
		{0, 1, 0.5, RGB{255, 0, 0}},
		{120, 1, 0.5, RGB{0, 255, 0}},
		{240, 1, 0.5, RGB{0, 0, 255}},
		{0, 0, 0.5, RGB{128, 128, 128}},
		{360, 1, 0.5, RGB{255, 0, 0}},
	}
	for _, tt := range tests {
		if got := hslToRGB(tt.h, tt.s, tt.l); got != tt.want {
			t.Errorf("hslToRGB(%v, %v, %v) = %v, want %v", tt.h, tt.s, tt.l, got, tt.want)
		}
	}
}

func TestRGBToLabWhite(t *testing.T) {
	l := rgbToLab(RGB{255, 255, 255})
	if math.Abs(l.l-100) > 0.01 || math.Abs(l.a) > 0.01 || math.Abs(l.b) > 0.01 {
		t.Errorf("white = Lab(%.3f, %.3f, %.3f), want (100, 0, 0)", l.l, l.a, l.b)
	}
}

// hueOf recovers the HSL hue of an RGB colour for band checks.
func hueOf(c RGB) float64 {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255
	mx := math.Max(r, math.Max(g, b))
	mn := math.Min(r, math.Min(g, b))
	if mx == mn {
		return 0
	}
	d := mx - mn
	var h float64
	switch mx {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h
}
