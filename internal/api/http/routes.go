package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/i474232898/electricity-map/internal/dataset"
	"github.com/i474232898/electricity-map/internal/electricity"
)

var validate = validator.New()

// SnapshotService serves the merged live snapshot.
type SnapshotService interface {
	GetSnapshot(ctx context.Context) (electricity.Snapshot, error)
	GetLatest() (electricity.Latest, bool)
}

// DatasetSource serves the historical dataset.
type DatasetSource interface {
	Get() (*dataset.Dataset, error)
	Location() *time.Location
}

// FeatureSource serves the country polygons.
type FeatureSource interface {
	Get() (*geojson.FeatureCollection, error)
}

// Deps are the handlers' collaborators. Dataset and Features may be nil, in
// which case their endpoints answer 503.
type Deps struct {
	Electricity SnapshotService
	Dataset     DatasetSource
	Features    FeatureSource
	Log         zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handlers{deps: deps}

	api := app.Group("/api")

	api.Get("/electricity-data", func(c *fiber.Ctx) error {
		snapshot, err := deps.Electricity.GetSnapshot(c.UserContext())
		if err != nil {
			deps.Log.Error().Err(err).Msg("failed to serve electricity data")
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch data")
		}
		return c.JSON(snapshot)
	})

	api.Get("/electricity-data/latest", func(c *fiber.Ctx) error {
		latest, ok := deps.Electricity.GetLatest()
		if !ok {
			return c.JSON(nil)
		}
		return c.JSON(latest)
	})

	historical := api.Group("/historical")
	historical.Get("/summary", h.summary)
	historical.Get("/dates", h.dates)
	historical.Get("/nearest", h.nearest)
	historical.Get("/resolve", h.resolve)
	historical.Get("/step", h.step)
	historical.Get("/ranking", h.ranking)

	api.Get("/map/features", h.features)
}

// parseTime accepts RFC3339, unix seconds, or "YYYY-MM-DDTHH:mm" and bare
// dates, both of which carry no offset and are read as UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.DateOnly, s); err == nil {
		return ts, nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, unix seconds, YYYY-MM-DDTHH:mm or YYYY-MM-DD")
}
