package zonemap

import (
	"fmt"
	"math"
)

const (
	// NoDataColor fills polygons without a usable intensity.
	NoDataColor = "#CCCCCC"

	minIntensity = 0.0
	maxIntensity = 1000.0
)

// Color maps an intensity in gCO2eq/kWh to a green-yellow-red ramp.
// Values are clamped to [0, 1000]; nil or NaN gives NoDataColor.
func Color(intensity *float64) string {
	if intensity == nil || math.IsNaN(*intensity) {
		return NoDataColor
	}
	v := math.Max(minIntensity, math.Min(maxIntensity, *intensity))
	ratio := (v - minIntensity) / (maxIntensity - minIntensity)

	var r, g int
	if ratio < 0.5 {
		r = round(ratio * 2 * 255)
		g = 255
	} else {
		r = 255
		g = round(math.Max(0, 1-(ratio-0.5)*2) * 255)
	}
	return fmt.Sprintf("rgb(%d,%d,%d)", r, g, 0)
}

// round rounds half up, so 127.5 becomes 128.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
