package zonemap

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"

	"github.com/i474232898/electricity-map/internal/dataset"
	"github.com/i474232898/electricity-map/internal/electricity"
)

// Feature property keys added by Map.
const (
	PropZoneID    = "csvZoneId"
	PropIntensity = "intensity"
	PropFillColor = "fillColor"
	PropLowCarbon = "lowCarbon"
	PropRenewable = "renewable"
	PropRecord    = "record"
)

// FeatureID returns the polygon id of f: its id member, or an ISO_A3 property.
func FeatureID(f *geojson.Feature) string {
	if s, ok := f.ID.(string); ok && s != "" {
		return s
	}
	for _, key := range []string{"ISO_A3", "iso_a3"} {
		if s, ok := f.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Map returns a copy of features with each polygon joined to its zone's record
// and colored by the intensity selected by mode. Polygons without a zone or a
// record get a nil intensity and NoDataColor. features is not modified.
func Map(features *geojson.FeatureCollection, records map[string]dataset.Record, mode dataset.Mode) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if features == nil {
		return out
	}
	for _, f := range features.Features {
		out.Append(mapFeature(f, records, mode))
	}
	return out
}

func mapFeature(f *geojson.Feature, records map[string]dataset.Record, mode dataset.Mode) *geojson.Feature {
	id := FeatureID(f)
	zoneID, mapped := ZoneFor(id)

	var (
		intensity, lowCarbon, renewable *float64
		record                          any
	)
	if rec, ok := records[zoneID]; mapped && ok {
		record = rec
		v := rec.Intensity(mode)
		intensity = &v
		if mode != dataset.ModeConsumption {
			lc, rn := rec.LowCarbonPercentage, rec.RenewablePercentage
			lowCarbon, renewable = &lc, &rn
		}
	}

	props := make(geojson.Properties, len(f.Properties)+6)
	for k, v := range f.Properties {
		props[k] = v
	}
	if mapped {
		props[PropZoneID] = zoneID
	} else {
		props[PropZoneID] = nil
	}
	props[PropIntensity] = floatOrNil(intensity)
	props[PropFillColor] = Color(intensity)
	props[PropLowCarbon] = floatOrNil(lowCarbon)
	props[PropRenewable] = floatOrNil(renewable)
	props[PropRecord] = record

	return &geojson.Feature{
		ID:         f.ID,
		Type:       f.Type,
		BBox:       f.BBox,
		Geometry:   f.Geometry,
		Properties: props,
	}
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Select picks the records to color for a historical day: the latest reading
// of that calendar day in loc for every zone.
func Select(ds *dataset.Dataset, day time.Time, loc *time.Location) map[string]dataset.Record {
	return ds.OnDay(day, loc)
}

type latestCarbon struct {
	Zone            string   `json:"zone"`
	CarbonIntensity *float64 `json:"carbonIntensity"`
	Datetime        string   `json:"datetime"`
}

// SelectLive picks each zone's most recent record and overlays the live zone
// with the carbon intensity from the latest snapshot reading. When the
// snapshot reading is missing or has no intensity the dataset record is kept.
func SelectLive(ds *dataset.Dataset, latest electricity.Latest) (map[string]dataset.Record, error) {
	out := make(map[string]dataset.Record)
	if ds != nil {
		out = ds.LatestPerZone()
	}
	if len(latest.CarbonIntensity) == 0 || string(latest.CarbonIntensity) == "null" {
		return out, nil
	}

	var lc latestCarbon
	if err := json.Unmarshal(latest.CarbonIntensity, &lc); err != nil {
		return out, fmt.Errorf("decode latest carbon intensity: %w", err)
	}
	if lc.Zone == "" || lc.CarbonIntensity == nil {
		return out, nil
	}

	rec := out[lc.Zone]
	rec.ZoneID = lc.Zone
	rec.DirectIntensity = *lc.CarbonIntensity
	rec.LCAIntensity = *lc.CarbonIntensity
	if t, err := time.Parse(time.RFC3339Nano, lc.Datetime); err == nil {
		rec.Date = t.UTC()
	}
	out[lc.Zone] = rec
	return out, nil
}
