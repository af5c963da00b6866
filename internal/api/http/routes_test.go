package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/electricity-map/internal/dataset"
	"github.com/i474232898/electricity-map/internal/electricity"
	"github.com/i474232898/electricity-map/internal/metrics"
	"github.com/i474232898/electricity-map/internal/zonemap"
)

type fakeSnapshots struct {
	snapshot electricity.Snapshot
	err      error
	latest   *electricity.Latest
}

func (f *fakeSnapshots) GetSnapshot(context.Context) (electricity.Snapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeSnapshots) GetLatest() (electricity.Latest, bool) {
	if f.latest == nil {
		return electricity.Latest{}, false
	}
	return *f.latest, true
}

type fakeDataset struct {
	ds  *dataset.Dataset
	err error
	loc *time.Location
}

func (f *fakeDataset) Get() (*dataset.Dataset, error) { return f.ds, f.err }

func (f *fakeDataset) Location() *time.Location {
	if f.loc == nil {
		return time.UTC
	}
	return f.loc
}

type fakeFeatures struct {
	fc *geojson.FeatureCollection
}

func (f *fakeFeatures) Get() (*geojson.FeatureCollection, error) {
	if f.fc == nil {
		return nil, zonemap.ErrNotLoaded
	}
	return f.fc, nil
}

func day(d int, hour int) time.Time {
	return time.Date(2023, 1, d, hour, 0, 0, 0, time.UTC)
}

func sampleDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Records: []dataset.Record{
			{Date: day(1, 10), Country: "Israel", ZoneName: "Israel", ZoneID: "IL", DirectIntensity: 500, LCAIntensity: 550},
			{Date: day(1, 12), Country: "France", ZoneName: "France", ZoneID: "FR", DirectIntensity: 40, LCAIntensity: 60},
			{Date: day(3, 9), Country: "Israel", ZoneName: "Israel", ZoneID: "IL", DirectIntensity: 1000, LCAIntensity: 990},
		},
		Dates:  []time.Time{day(1, 0), day(3, 0)},
		Bounds: dataset.Range{Start: day(1, 10), End: day(3, 9)},
		Report: dataset.Report{Accepted: 3},
	}
}

func sampleFeatures() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, id := range []string{"ISR", "FRA"} {
		f := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
		f.ID = id
		fc.Append(f)
	}
	return fc
}

func newTestApp(deps Deps, rec metrics.Recorder) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Metrics(rec))
	deps.Log = zerolog.Nop()
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	}
	RegisterRoutes(app, deps)
	return app
}

func get(t *testing.T, app *fiber.App, target string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestElectricityData(t *testing.T) {
	ci := 420.0
	snap := electricity.Snapshot{
		Latest:  electricity.Latest{Power: json.RawMessage(`{"zone":"IL"}`), CarbonIntensity: json.RawMessage(`{"carbonIntensity":420}`)},
		History: []electricity.Record{{Datetime: day(1, 10), CarbonIntensity: &ci}},
	}
	app := newTestApp(Deps{Electricity: &fakeSnapshots{snapshot: snap}}, nil)

	status, body := get(t, app, "/api/electricity-data")
	require.Equal(t, http.StatusOK, status)

	var got electricity.Snapshot
	require.NoError(t, json.Unmarshal(body, &got))
	assert.JSONEq(t, `{"zone":"IL"}`, string(got.Latest.Power))
	require.Len(t, got.History, 1)
	assert.Equal(t, 420.0, *got.History[0].CarbonIntensity)
}

func TestElectricityData_UpstreamFailure(t *testing.T) {
	app := newTestApp(Deps{Electricity: &fakeSnapshots{err: errors.New("boom")}}, nil)

	status, body := get(t, app, "/api/electricity-data")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"Failed to fetch data"}`, string(body))
}

func TestElectricityLatest(t *testing.T) {
	app := newTestApp(Deps{Electricity: &fakeSnapshots{}}, nil)
	status, body := get(t, app, "/api/electricity-data/latest")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "null", string(body))

	latest := electricity.Latest{Power: json.RawMessage(`{"a":1}`), CarbonIntensity: json.RawMessage(`{"b":2}`)}
	app = newTestApp(Deps{Electricity: &fakeSnapshots{latest: &latest}}, nil)
	status, body = get(t, app, "/api/electricity-data/latest")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"power":{"a":1},"carbonIntensity":{"b":2}}`, string(body))
}

func TestHistorical_NotLoaded(t *testing.T) {
	apps := map[string]*fiber.App{
		"nil source":   newTestApp(Deps{Electricity: &fakeSnapshots{}}, nil),
		"not loaded":   newTestApp(Deps{Electricity: &fakeSnapshots{}, Dataset: &fakeDataset{err: dataset.ErrNotLoaded}}, nil),
		"no geojson":   newTestApp(Deps{Electricity: &fakeSnapshots{}, Dataset: &fakeDataset{ds: sampleDataset()}, Features: &fakeFeatures{}}, nil),
		"nil features": newTestApp(Deps{Electricity: &fakeSnapshots{}, Dataset: &fakeDataset{ds: sampleDataset()}}, nil),
	}
	for name, app := range apps {
		t.Run(name, func(t *testing.T) {
			status, _ := get(t, app, "/api/map/features?date=2023-01-01")
			assert.Equal(t, http.StatusServiceUnavailable, status)
		})
	}

	app := apps["not loaded"]
	for _, target := range []string{
		"/api/historical/summary",
		"/api/historical/dates",
		"/api/historical/nearest?at=2023-01-01",
		"/api/historical/ranking",
	} {
		status, body := get(t, app, target)
		assert.Equal(t, http.StatusServiceUnavailable, status, target)
		assert.Contains(t, string(body), "not loaded")
	}
}

func historicalApp() *fiber.App {
	return newTestApp(Deps{
		Electricity: &fakeSnapshots{},
		Dataset:     &fakeDataset{ds: sampleDataset()},
		Features:    &fakeFeatures{fc: sampleFeatures()},
	}, nil)
}

func TestHistorical_SummaryAndDates(t *testing.T) {
	app := historicalApp()

	status, body := get(t, app, "/api/historical/summary")
	require.Equal(t, http.StatusOK, status)
	var summary struct {
		Records int       `json:"records"`
		Dates   int       `json:"dates"`
		Start   time.Time `json:"start"`
		End     time.Time `json:"end"`
	}
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 2, summary.Dates)
	assert.True(t, day(1, 10).Equal(summary.Start))

	status, body = get(t, app, "/api/historical/dates")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `["2023-01-01","2023-01-03"]`, string(body))
}

func TestHistorical_Nearest(t *testing.T) {
	app := historicalApp()

	status, body := get(t, app, "/api/historical/nearest?at=2023-01-02T20:00")
	require.Equal(t, http.StatusOK, status)
	var m dataset.Match
	require.NoError(t, json.Unmarshal(body, &m))
	assert.True(t, day(3, 0).Equal(m.Date))
	assert.Equal(t, int64(4*60), m.DiffMinutes)

	status, _ = get(t, app, "/api/historical/nearest")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, app, "/api/historical/nearest?at=soon")
	assert.Equal(t, http.StatusBadRequest, status)

	empty := newTestApp(Deps{Electricity: &fakeSnapshots{}, Dataset: &fakeDataset{ds: &dataset.Dataset{}}}, nil)
	status, _ = get(t, empty, "/api/historical/nearest?at=2023-01-01")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHistorical_Resolve(t *testing.T) {
	app := historicalApp()

	status, body := get(t, app, "/api/historical/resolve?at=2030-01-01T00:00:00Z")
	require.Equal(t, http.StatusOK, status)
	var r dataset.Resolution
	require.NoError(t, json.Unmarshal(body, &r))
	assert.True(t, r.Live)

	status, body = get(t, app, "/api/historical/resolve?at=2022-01-01")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &r))
	assert.False(t, r.Live)
	require.NotNil(t, r.Date)
	assert.True(t, day(1, 10).Equal(*r.Date))
}

func TestHistorical_LocalQueryTimesAreUTC(t *testing.T) {
	app := newTestApp(Deps{
		Electricity: &fakeSnapshots{},
		Dataset:     &fakeDataset{ds: sampleDataset(), loc: time.FixedZone("IDT", 3*3600)},
	}, nil)

	// Read as UTC+3 this would be 11:30 UTC and 12h30 from Jan 3.
	status, body := get(t, app, "/api/historical/nearest?at=2023-01-02T14:30")
	require.Equal(t, http.StatusOK, status)
	var m dataset.Match
	require.NoError(t, json.Unmarshal(body, &m))
	assert.True(t, day(3, 0).Equal(m.Date))
	assert.Equal(t, int64(9*60+30), m.DiffMinutes)

	// The range starts at 10:00 UTC on Jan 1; 11:30 in UTC+3 would fall before it.
	status, body = get(t, app, "/api/historical/resolve?at=2023-01-01T11:30")
	require.Equal(t, http.StatusOK, status)
	var r dataset.Resolution
	require.NoError(t, json.Unmarshal(body, &r))
	assert.True(t, r.Snapped)
	assert.Equal(t, int64(11*60+30), r.DiffMinutes)
}

func TestHistorical_FarFutureNearest(t *testing.T) {
	app := historicalApp()

	status, body := get(t, app, "/api/historical/nearest?at=99999999999")
	require.Equal(t, http.StatusOK, status)
	var m dataset.Match
	require.NoError(t, json.Unmarshal(body, &m))
	assert.True(t, day(3, 0).Equal(m.Date))
	assert.Positive(t, m.DiffMinutes)
}

func TestHistorical_Step(t *testing.T) {
	app := historicalApp()

	status, body := get(t, app, "/api/historical/step?from=2023-01-01&direction=next")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"date":"2023-01-03"}`, string(body))

	status, _ = get(t, app, "/api/historical/step?from=2023-01-01&direction=prev")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = get(t, app, "/api/historical/step?from=2023-01-03&direction=next")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"live":true}`, string(body))

	status, _ = get(t, app, "/api/historical/step?from=2023-01-01&direction=sideways")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, app, "/api/historical/step?from=01/01/2023&direction=next")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHistorical_Ranking(t *testing.T) {
	app := historicalApp()

	status, body := get(t, app, "/api/historical/ranking?mode=consumption")
	require.Equal(t, http.StatusOK, status)
	var entries []dataset.RankEntry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "IL", entries[0].ZoneID)
	assert.Equal(t, 550.0, entries[0].Intensity)

	status, body = get(t, app, "/api/historical/ranking?q=fra&limit=5")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "France", entries[0].Country)

	status, _ = get(t, app, "/api/historical/ranking?mode=sideways")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, app, "/api/historical/ranking?limit=many")
	assert.Equal(t, http.StatusBadRequest, status)
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func TestMapFeatures_Historical(t *testing.T) {
	app := historicalApp()

	status, body := get(t, app, "/api/map/features?date=2023-01-01&mode=production")
	require.Equal(t, http.StatusOK, status)

	var fc featureCollection
	require.NoError(t, json.Unmarshal(body, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "ISR", fc.Features[0].ID)
	assert.Equal(t, 500.0, fc.Features[0].Properties["intensity"])
	assert.Equal(t, "rgb(255,255,0)", fc.Features[0].Properties["fillColor"])
	assert.Equal(t, 40.0, fc.Features[1].Properties["intensity"])

	status, body = get(t, app, "/api/map/features?date=2023-01-02")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &fc))
	assert.Equal(t, zonemap.NoDataColor, fc.Features[0].Properties["fillColor"])
	assert.Nil(t, fc.Features[0].Properties["intensity"])

	status, _ = get(t, app, "/api/map/features?date=yesterday")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMapFeatures_Live(t *testing.T) {
	latest := electricity.Latest{CarbonIntensity: json.RawMessage(`{"zone":"IL","carbonIntensity":0,"datetime":"2024-01-01T00:00:00.000Z"}`)}
	app := newTestApp(Deps{
		Electricity: &fakeSnapshots{latest: &latest},
		Dataset:     &fakeDataset{ds: sampleDataset()},
		Features:    &fakeFeatures{fc: sampleFeatures()},
	}, nil)

	status, body := get(t, app, "/api/map/features?mode=consumption")
	require.Equal(t, http.StatusOK, status)

	var fc featureCollection
	require.NoError(t, json.Unmarshal(body, &fc))
	require.Len(t, fc.Features, 2)
	assert.Equal(t, 0.0, fc.Features[0].Properties["intensity"])
	assert.Equal(t, "rgb(0,255,0)", fc.Features[0].Properties["fillColor"])
	assert.Equal(t, 60.0, fc.Features[1].Properties["intensity"])
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()
	app := newTestApp(Deps{Electricity: &fakeSnapshots{err: errors.New("boom")}}, m)

	get(t, app, "/api/electricity-data/latest")
	get(t, app, "/api/electricity-data")

	n, err := testutil.GatherAndCount(m.Registry(), "electricity_map_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2023, 1, 2, 3, 4, 0, 0, time.UTC)
	for _, in := range []string{"2023-01-02T03:04:00Z", "1672628640", "2023-01-02T03:04"} {
		got, err := parseTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}
	_, err := parseTime("tomorrow")
	assert.Error(t, err)
}
