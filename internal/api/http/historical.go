package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/electricity-map/internal/dataset"
	"github.com/i474232898/electricity-map/internal/electricity"
	"github.com/i474232898/electricity-map/internal/zonemap"
)

type handlers struct {
	deps Deps
}

type atQuery struct {
	At string `query:"at" validate:"required"`
}

type stepQuery struct {
	From      string `query:"from" validate:"required,datetime=2006-01-02"`
	Direction string `query:"direction" validate:"required,oneof=prev next"`
}

type rankingQuery struct {
	Mode  string `query:"mode" validate:"omitempty,oneof=production consumption"`
	Q     string `query:"q" validate:"max=100"`
	Limit int    `query:"limit" validate:"gte=0,lte=500"`
}

type featuresQuery struct {
	Mode string `query:"mode" validate:"omitempty,oneof=production consumption"`
	// Date is a YYYY-MM-DD day; empty means live.
	Date string `query:"date" validate:"omitempty,datetime=2006-01-02"`
}

func bindQuery(c *fiber.Ctx, out any) error {
	if err := c.QueryParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func modeOrDefault(m string) dataset.Mode {
	if m == string(dataset.ModeConsumption) {
		return dataset.ModeConsumption
	}
	return dataset.ModeProduction
}

func (h *handlers) dataset() (*dataset.Dataset, error) {
	if h.deps.Dataset == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, dataset.ErrNotLoaded.Error())
	}
	ds, err := h.deps.Dataset.Get()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return ds, nil
}

func (h *handlers) location() *time.Location {
	if h.deps.Dataset == nil {
		return time.UTC
	}
	return h.deps.Dataset.Location()
}

func (h *handlers) summary(c *fiber.Ctx) error {
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"records": len(ds.Records),
		"dates":   len(ds.Dates),
		"start":   ds.Bounds.Start,
		"end":     ds.Bounds.End,
		"report":  ds.Report,
	})
}

func (h *handlers) dates(c *fiber.Ctx) error {
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	out := make([]string, len(ds.Dates))
	for i, d := range ds.Dates {
		out[i] = dataset.DayKey(d)
	}
	return c.JSON(out)
}

func (h *handlers) parseAt(c *fiber.Ctx) (time.Time, error) {
	var q atQuery
	if err := bindQuery(c, &q); err != nil {
		return time.Time{}, err
	}
	at, err := parseTime(q.At)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return at, nil
}

func (h *handlers) nearest(c *fiber.Ctx) error {
	at, err := h.parseAt(c)
	if err != nil {
		return err
	}
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	m, ok := dataset.Nearest(ds.Dates, at)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no dates available")
	}
	return c.JSON(m)
}

func (h *handlers) resolve(c *fiber.Ctx) error {
	at, err := h.parseAt(c)
	if err != nil {
		return err
	}
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	return c.JSON(ds.Resolve(at, h.deps.Now()))
}

func (h *handlers) step(c *fiber.Ctx) error {
	var q stepQuery
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	from, _ := time.Parse(time.DateOnly, q.From)
	delta := 1
	if q.Direction == "prev" {
		delta = -1
	}
	res, ok := ds.StepOrLive(from, delta, h.deps.Now())
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no date in that direction")
	}
	if res.Live {
		return c.JSON(fiber.Map{"live": true})
	}
	return c.JSON(fiber.Map{"date": dataset.DayKey(*res.Date)})
}

func (h *handlers) ranking(c *fiber.Ctx) error {
	var q rankingQuery
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	return c.JSON(dataset.Rank(ds.Records, modeOrDefault(q.Mode), q.Q, q.Limit))
}

func (h *handlers) features(c *fiber.Ctx) error {
	var q featuresQuery
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	if h.deps.Features == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, zonemap.ErrNotLoaded.Error())
	}
	fc, err := h.deps.Features.Get()
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	records, err := h.selectRecords(q.Date)
	if err != nil {
		return err
	}
	return c.JSON(zonemap.Map(fc, records, modeOrDefault(q.Mode)))
}

func (h *handlers) selectRecords(date string) (map[string]dataset.Record, error) {
	if date == "" {
		var ds *dataset.Dataset
		if h.deps.Dataset != nil {
			ds, _ = h.deps.Dataset.Get()
		}
		var latest electricity.Latest
		if h.deps.Electricity != nil {
			latest, _ = h.deps.Electricity.GetLatest()
		}
		records, err := zonemap.SelectLive(ds, latest)
		if err != nil {
			h.deps.Log.Warn().Err(err).Msg("live overlay skipped")
		}
		return records, nil
	}

	ds, err := h.dataset()
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(time.DateOnly, date, h.location())
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return zonemap.Select(ds, day, h.location()), nil
}

var (
	_ FeatureSource   = (*zonemap.FeatureStore)(nil)
	_ DatasetSource   = (*dataset.Repository)(nil)
	_ SnapshotService = (*electricity.Service)(nil)
)
