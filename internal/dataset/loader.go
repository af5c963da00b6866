package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/i474232898/electricity-map/internal/common"
)

var (
	ErrEmptyPayload     = errors.New("CSV file is empty")
	ErrHTMLPayload      = errors.New("received HTML instead of CSV data")
	ErrInsufficientData = errors.New("CSV file has insufficient data")
	ErrMissingHeaders   = errors.New("CSV missing required headers")
	ErrNoValidRows      = errors.New("no valid data rows found in CSV")
)

// DefaultChunkSize is the number of rows parsed between progress checkpoints.
const DefaultChunkSize = 10000

// maxRejectionSamples bounds Report.Samples.
const maxRejectionSamples = 50

// RejectReason explains why a row was dropped.
type RejectReason string

const (
	ReasonFieldCount  RejectReason = "field_count_mismatch"
	ReasonInvalidDate RejectReason = "invalid_date"
	ReasonMalformed   RejectReason = "malformed_row"
)

// Rejection is a sample of a dropped row.
type Rejection struct {
	Line   int          `json:"line"`
	Reason RejectReason `json:"reason"`
}

// Report summarizes a load.
type Report struct {
	Accepted int                  `json:"accepted"`
	Rejected int                  `json:"rejected"`
	Reasons  map[RejectReason]int `json:"reasons,omitempty"`
	Samples  []Rejection          `json:"samples,omitempty"`
}

func (r *Report) reject(line int, reason RejectReason) {
	r.Rejected++
	if r.Reasons == nil {
		r.Reasons = make(map[RejectReason]int)
	}
	r.Reasons[reason]++
	if len(r.Samples) < maxRejectionSamples {
		r.Samples = append(r.Samples, Rejection{Line: line, Reason: reason})
	}
}

// Progress is reported after every chunk.
type Progress struct {
	Chunk    int
	Rows     int
	Accepted int
	Rejected int
}

// Options configures Load.
type Options struct {
	// Location applies to timestamps without an explicit offset. Defaults to time.Local.
	Location *time.Location
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
	// OnProgress, when set, is called after each chunk.
	OnProgress func(Progress)
}

// headerAliases maps alternate spellings found in some exports to canonical names.
var headerAliases = map[string]string{
	"Carbon Intensity gCOâ‚‚eq/kWh (direct)": ColDirect,
	"Carbon Intensity gCOâ‚‚eq/kWh (LCA)":    ColLCA,
}

// Load parses the historical dataset from r.
//
// The payload is rejected up front when it is empty, looks like an HTML page,
// has no data rows, or lacks a required header. Individual rows whose field
// count differs from the header or whose date does not parse are dropped and
// counted in the report. Between chunks Load checks ctx and reports progress.
func Load(ctx context.Context, r io.Reader, opts Options) (*Dataset, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	br := bufio.NewReader(r)
	if err := sniff(br); err != nil {
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPayload
		}
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	index, err := indexHeaders(header)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	days := make(map[int64]time.Time)
	rows := 0
	sawData := false

	for chunk := 0; ; chunk++ {
		eof := false
		for i := 0; i < opts.ChunkSize; i++ {
			fields, err := reader.Read()
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					sawData = true
					rows++
					ds.Report.reject(perr.StartLine, ReasonMalformed)
					continue
				}
				return nil, fmt.Errorf("read CSV: %w", err)
			}
			if blank(fields) {
				continue
			}
			sawData = true
			rows++
			line, _ := reader.FieldPos(0)

			if len(fields) != len(header) {
				ds.Report.reject(line, ReasonFieldCount)
				continue
			}
			rec, ok := index.record(fields, opts.Location)
			if !ok {
				ds.Report.reject(line, ReasonInvalidDate)
				continue
			}

			ds.Records = append(ds.Records, rec)
			ds.Report.Accepted++
			if ds.Bounds.Start.IsZero() || rec.Date.Before(ds.Bounds.Start) {
				ds.Bounds.Start = rec.Date
			}
			if rec.Date.After(ds.Bounds.End) {
				ds.Bounds.End = rec.Date
			}
			day := startOfUTCDay(rec.Date)
			days[day.Unix()] = day
		}

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Chunk:    chunk,
				Rows:     rows,
				Accepted: ds.Report.Accepted,
				Rejected: ds.Report.Rejected,
			})
		}
		if eof {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if !sawData {
		return nil, ErrInsufficientData
	}

	ds.Dates = make([]time.Time, 0, len(days))
	for _, d := range days {
		ds.Dates = append(ds.Dates, d)
	}
	sort.Slice(ds.Dates, func(i, j int) bool { return ds.Dates[i].Before(ds.Dates[j]) })
	return ds, nil
}

// sniff rejects empty and HTML payloads without consuming the reader.
func sniff(br *bufio.Reader) error {
	peek, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("read CSV: %w", err)
	}
	head := strings.TrimLeftFunc(string(peek), unicode.IsSpace)
	head = strings.TrimPrefix(head, "\ufeff")
	if strings.TrimSpace(head) == "" {
		return ErrEmptyPayload
	}
	if common.HasAnyPrefix(head, "<!doctype html", "<html") {
		return ErrHTMLPayload
	}
	return nil
}

type columnIndex map[string]int

func indexHeaders(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if canonical, ok := headerAliases[h]; ok {
			h = canonical
		}
		header[i] = h
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	var missing []string
	for _, h := range RequiredHeaders {
		if _, ok := idx[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeaders, strings.Join(missing, ", "))
	}
	return idx, nil
}

func (idx columnIndex) get(fields []string, col string) string {
	i, ok := idx[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func (idx columnIndex) record(fields []string, loc *time.Location) (Record, bool) {
	date, err := ParseDate(idx.get(fields, ColDatetime), loc)
	if err != nil {
		return Record{}, false
	}
	return Record{
		Date:                date,
		Country:             idx.get(fields, ColCountry),
		ZoneName:            idx.get(fields, ColZoneName),
		ZoneID:              idx.get(fields, ColZoneID),
		DirectIntensity:     parseNumber(idx.get(fields, ColDirect)),
		LCAIntensity:        parseNumber(idx.get(fields, ColLCA)),
		LowCarbonPercentage: parseNumber(idx.get(fields, ColLowCarbon)),
		RenewablePercentage: parseNumber(idx.get(fields, ColRenewable)),
	}, true
}

// parseNumber returns 0 for anything that is not a finite number.
func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
