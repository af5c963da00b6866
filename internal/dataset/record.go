// Package dataset loads the historical carbon-intensity CSV and answers
// date-navigation questions over it.
package dataset

import "time"

// Column names of the historical CSV export.
const (
	ColDatetime  = "Datetime (UTC)"
	ColCountry   = "Country"
	ColZoneName  = "Zone Name"
	ColZoneID    = "Zone Id"
	ColDirect    = "Carbon Intensity gCO₂eq/kWh (direct)"
	ColLCA       = "Carbon Intensity gCO₂eq/kWh (LCA)"
	ColLowCarbon = "Low Carbon Percentage"
	ColRenewable = "Renewable Percentage"
)

// RequiredHeaders must all be present in the header row.
var RequiredHeaders = []string{ColDatetime, ColCountry, ColZoneName, ColDirect, ColLCA}

// Record is one parsed row.
type Record struct {
	Date                time.Time `json:"date"`
	Country             string    `json:"country"`
	ZoneName            string    `json:"zoneName"`
	ZoneID              string    `json:"zoneId"`
	DirectIntensity     float64   `json:"directIntensity"`
	LCAIntensity        float64   `json:"lcaIntensity"`
	LowCarbonPercentage float64   `json:"lowCarbonPercentage"`
	RenewablePercentage float64   `json:"renewablePercentage"`
}

// Mode selects which intensity a view reads.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeConsumption Mode = "consumption"
)

// Intensity returns the record's intensity for the mode: direct for
// production, lifecycle (LCA) for consumption.
func (r Record) Intensity(mode Mode) float64 {
	if mode == ModeConsumption {
		return r.LCAIntensity
	}
	return r.DirectIntensity
}

// Range is an inclusive time interval.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Dataset is the result of a successful load.
type Dataset struct {
	Records []Record
	// Dates are the distinct UTC calendar days present, ascending, each at midnight UTC.
	Dates  []time.Time
	Bounds Range
	Report Report
}
