package web

import (
	"fmt"
	"math"
)

// UnpublishedColor fills countries whose counts are withheld.
const UnpublishedColor = "#404040"

type rgb struct{ r, g, b float64 }

// viridisStops is a three-stop approximation of the viridis colormap.
var viridisStops = []rgb{
	{0x44, 0x01, 0x54},
	{0x21, 0x91, 0x8c},
	{0xfd, 0xe7, 0x25},
}

// ViridisStops returns the stop colors, lowest first, for the legend.
func ViridisStops() []string {
	out := make([]string, len(viridisStops))
	for i, c := range viridisStops {
		out[i] = c.hex()
	}
	return out
}

func (c rgb) hex() string {
	return fmt.Sprintf("#%02x%02x%02x", int(math.Round(c.r)), int(math.Round(c.g)), int(math.Round(c.b)))
}

// LegendMax rounds the largest value up to the next hundred.
func LegendMax(maxEditors int) int {
	if maxEditors <= 0 {
		return 100
	}
	return int(math.Ceil(float64(maxEditors)/100)) * 100
}

// Color maps editors onto the colormap on a log scale from 1 to legendMax.
func Color(editors, legendMax int) string {
	if legendMax <= 1 {
		return viridisStops[len(viridisStops)-1].hex()
	}
	t := 0.0
	if editors > 1 {
		t = math.Log10(float64(editors)) / math.Log10(float64(legendMax))
	}
	return interpolate(math.Min(math.Max(t, 0), 1)).hex()
}

func interpolate(t float64) rgb {
	segments := float64(len(viridisStops) - 1)
	i := int(t * segments)
	if i >= len(viridisStops)-1 {
		return viridisStops[len(viridisStops)-1]
	}
	u := t*segments - float64(i)
	a, b := viridisStops[i], viridisStops[i+1]
	return rgb{
		r: a.r + (b.r-a.r)*u,
		g: a.g + (b.g-a.g)*u,
		b: a.b + (b.b-a.b)*u,
	}
}
