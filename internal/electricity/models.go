package electricity

import (
	"time"

	"github.com/goccy/go-json"
)

// Breakdown maps an energy source name (e.g. "solar", "gas") to a power value in MW.
// Upstream reports unknown values as null, kept here as nil.
type Breakdown map[string]*float64

// Totals holds the aggregate of each breakdown.
type Totals struct {
	Consumption *float64 `json:"consumption"`
	Production  *float64 `json:"production"`
	Imports     *float64 `json:"imports"`
	Exports     *float64 `json:"exports"`
}

// PowerData is the power-breakdown part of a Record.
type PowerData struct {
	Consumption Breakdown `json:"consumption"`
	Production  Breakdown `json:"production"`
	Imports     Breakdown `json:"imports"`
	Exports     Breakdown `json:"exports"`
	Totals      Totals    `json:"totals"`
}

// Percentages are shares of the electricity mix.
type Percentages struct {
	FossilFree *float64 `json:"fossilFree"`
	Renewable  *float64 `json:"renewable"`
}

// Record is one point of the merged history, keyed by Datetime.
// PowerData/Percentages come from the power-breakdown series and
// CarbonIntensity from the carbon-intensity series; either side may be absent.
type Record struct {
	Datetime        time.Time    `json:"datetime"`
	UpdatedAt       string       `json:"updatedAt,omitempty"`
	CreatedAt       string       `json:"createdAt,omitempty"`
	PowerData       *PowerData   `json:"powerData,omitempty"`
	Percentages     *Percentages `json:"percentages,omitempty"`
	CarbonIntensity *float64     `json:"carbonIntensity,omitempty"`
}

// Latest holds the most recent upstream readings, passed through unchanged.
type Latest struct {
	Power           json.RawMessage `json:"power"`
	CarbonIntensity json.RawMessage `json:"carbonIntensity"`
}

// Snapshot is the persisted unit. History is ordered by Datetime, newest first.
type Snapshot struct {
	Latest  Latest   `json:"latest"`
	History []Record `json:"history"`
}

// PowerEntry is one element of the upstream power-breakdown history.
type PowerEntry struct {
	Zone                      string    `json:"zone"`
	Datetime                  string    `json:"datetime"`
	UpdatedAt                 string    `json:"updatedAt"`
	CreatedAt                 string    `json:"createdAt"`
	PowerConsumptionBreakdown Breakdown `json:"powerConsumptionBreakdown"`
	PowerProductionBreakdown  Breakdown `json:"powerProductionBreakdown"`
	PowerImportBreakdown      Breakdown `json:"powerImportBreakdown"`
	PowerExportBreakdown      Breakdown `json:"powerExportBreakdown"`
	FossilFreePercentage      *float64  `json:"fossilFreePercentage"`
	RenewablePercentage       *float64  `json:"renewablePercentage"`
	PowerConsumptionTotal     *float64  `json:"powerConsumptionTotal"`
	PowerProductionTotal      *float64  `json:"powerProductionTotal"`
	PowerImportTotal          *float64  `json:"powerImportTotal"`
	PowerExportTotal          *float64  `json:"powerExportTotal"`
}

// CarbonEntry is one element of the upstream carbon-intensity history.
type CarbonEntry struct {
	Zone            string   `json:"zone"`
	Datetime        string   `json:"datetime"`
	UpdatedAt       string   `json:"updatedAt"`
	CreatedAt       string   `json:"createdAt"`
	CarbonIntensity *float64 `json:"carbonIntensity"`
}

// Bundle is the raw result of one upstream fetch.
type Bundle struct {
	LatestPower   json.RawMessage
	LatestCarbon  json.RawMessage
	PowerHistory  []PowerEntry
	CarbonHistory []CarbonEntry
}
