// Package decoder translates GRIB2 files into domain datasets. The binary
// format itself is handled entirely by the external griblib package; this
// package only maps its message structures onto domain.Field values.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nilsmagnus/grib/griblib"

	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/observability"
)

// Magic is the indicator sequence every GRIB message starts with.
var Magic = []byte("GRIB")

// ErrNotGRIB reports a file that does not start with the GRIB indicator.
var ErrNotGRIB = errors.New("not a GRIB file")

// ErrNoFields reports a GRIB file in which no message carried a supported grid.
var ErrNoFields = errors.New("no decodable fields in GRIB file")

// IsGRIB reports whether a byte prefix looks like a GRIB file.
func IsGRIB(prefix []byte) bool {
	return len(prefix) >= len(Magic) && bytes.Equal(prefix[:len(Magic)], Magic)
}

// Decoder reads GRIB2 files from disk into domain datasets.
type Decoder struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Decoder.
func New(logger *slog.Logger, metrics *observability.Metrics) *Decoder {
	return &Decoder{logger: logger, metrics: metrics}
}

// Decode reads every message in the file at path and converts the supported
// ones into fields. Messages on grids other than latitude/longitude
// (template 0) are skipped; decoding fails only if nothing usable remains.
func (d *Decoder) Decode(path string) (*domain.Dataset, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grib file: %w", err)
	}
	defer f.Close()

	prefix := make([]byte, len(Magic))
	if _, err := io.ReadFull(f, prefix); err != nil || !IsGRIB(prefix) {
		d.metrics.DecodeErrors.Inc()
		return nil, ErrNotGRIB
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind grib file: %w", err)
	}

	messages, err := griblib.ReadMessages(f)
	if err != nil {
		d.metrics.DecodeErrors.Inc()
		return nil, fmt.Errorf("read grib messages: %w", err)
	}

	ds := &domain.Dataset{Attributes: map[string]string{}}
	skipped := 0
	for _, msg := range messages {
		field, ok := convertMessage(msg)
		if !ok {
			skipped++
			continue
		}
		ds.Fields = append(ds.Fields, field)
	}

	if len(ds.Fields) == 0 {
		d.metrics.DecodeErrors.Inc()
		return nil, ErrNoFields
	}

	fillAttributes(ds, messages)

	d.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
	d.logger.Debug("decoded grib file",
		"path", path,
		"messages", len(messages),
		"fields", len(ds.Fields),
		"skipped", skipped,
		"duration", time.Since(start),
	)
	return ds, nil
}

// convertMessage maps one GRIB message onto a domain field. Returns false for
// grid templates the viewer cannot place on a map.
func convertMessage(msg *griblib.Message) (domain.Field, bool) {
	grid, ok := msg.Section3.Definition.(*griblib.Grid0)
	if !ok {
		return domain.Field{}, false
	}

	ni := int(grid.Ni)
	nj := int(grid.Nj)
	if ni <= 0 || nj <= 0 || len(msg.Section7.Data) < ni*nj {
		return domain.Field{}, false
	}

	tpl := msg.Section4.ProductDefinitionTemplate
	info := paramFor(msg.Section0.Discipline, tpl.ParameterCategory, tpl.ParameterNumber)
	kind, level := surfaceLevel(tpl.FirstSurface.Type, tpl.FirstSurface.Scale, tpl.FirstSurface.Value)

	refTime := referenceTime(msg.Section1.ReferenceTime)
	validTime := refTime.Add(forecastOffset(tpl.TimeUnitIndicator, tpl.ForecastTime))

	return domain.Field{
		Name:          info.Name,
		Description:   info.Description,
		Unit:          info.Unit,
		LevelKind:     kind,
		LevelValue:    level,
		ReferenceTime: refTime,
		ValidTime:     validTime,
		Lats:          axis(grid.La1, grid.La2, nj),
		Lons:          lonAxis(grid.Lo1, grid.Lo2, ni),
		Values:        msg.Section7.Data[:ni*nj],
	}, true
}

func fillAttributes(ds *domain.Dataset, messages []*griblib.Message) {
	if len(messages) == 0 {
		return
	}
	first := messages[0]
	ds.Attributes["centre"] = centreName(first.Section1.OriginatingCenter)
	ds.Attributes["edition"] = fmt.Sprintf("%d", first.Section0.Edition)
	ds.Attributes["discipline"] = disciplineName(first.Section0.Discipline)
	ds.Attributes["messages"] = fmt.Sprintf("%d", len(messages))
}

func referenceTime(t griblib.Time) time.Time {
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), 0, time.UTC)
}

// forecastOffset converts a (time unit indicator, forecast time) pair into a
// duration. Units per WMO code table 4.4; sub-daily units only, anything else
// is treated as an analysis (offset 0).
func forecastOffset(unit uint8, value uint32) time.Duration {
	v := time.Duration(value)
	switch unit {
	case 0:
		return v * time.Minute
	case 1:
		return v * time.Hour
	case 2:
		return v * 24 * time.Hour
	case 10:
		return v * 3 * time.Hour
	case 11:
		return v * 6 * time.Hour
	case 12:
		return v * 12 * time.Hour
	case 13:
		return v * time.Second
	default:
		return 0
	}
}

// axis expands micro-degree endpoints into n evenly spaced coordinates.
// Endpoint interpolation sidesteps the scanning-mode sign conventions on the
// direction increments.
func axis(from, to int32, n int) []float64 {
	out := make([]float64, n)
	start := float64(from) * 1e-6
	end := float64(to) * 1e-6
	if n == 1 {
		out[0] = start
		return out
	}
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// lonAxis is axis with longitudes normalized to [-180, 180) for the map layer.
func lonAxis(from, to int32, n int) []float64 {
	start := float64(from) * 1e-6
	end := float64(to) * 1e-6
	// GRIB encodes westward longitudes as 0..360; unwrap crossings so the
	// axis stays monotonic before normalizing.
	if end < start {
		end += 360
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = normalizeLon(start)
		return out
	}
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = normalizeLon(start + float64(i)*step)
	}
	return out
}

func normalizeLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
