package domain

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"
)

// LevelKind names the vertical coordinate of a field.
type LevelKind string

const (
	LevelSurface           LevelKind = "surface"
	LevelIsobaricInhPa     LevelKind = "isobaricInhPa"
	LevelHeightAboveGround LevelKind = "heightAboveGround"
	LevelMeanSea           LevelKind = "meanSea"
	LevelUnknown           LevelKind = "unknown"
)

// Value is a data point that serializes NaN and infinities as JSON null.
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler; null becomes NaN.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// Field is one decoded GRIB message: a single variable on a single level at a
// single valid time, on a latitude/longitude grid.
type Field struct {
	Name        string
	Description string
	Unit        string

	LevelKind  LevelKind
	LevelValue float64

	ReferenceTime time.Time
	ValidTime     time.Time

	Lats   []float64 // one entry per grid row
	Lons   []float64 // one entry per grid column
	Values []float64 // row-major, len == len(Lats)*len(Lons), NaN = missing
}

// Grid reshapes the flat value slice into [lat][lon] rows of JSON-safe values.
func (f *Field) Grid() [][]Value {
	rows := make([][]Value, len(f.Lats))
	ni := len(f.Lons)
	for j := range f.Lats {
		row := make([]Value, ni)
		for i := 0; i < ni; i++ {
			idx := j*ni + i
			if idx < len(f.Values) {
				row[i] = Value(f.Values[idx])
			} else {
				row[i] = Value(math.NaN())
			}
		}
		rows[j] = row
	}
	return rows
}

// Dataset holds every decoded field of one GRIB file.
type Dataset struct {
	FileID     string
	Filename   string
	Fields     []Field
	Attributes map[string]string
}

// Coordinates are the axes the viewer builds its selectors and scrubber from.
type Coordinates struct {
	Latitude      []float64   `json:"latitude"`
	Longitude     []float64   `json:"longitude"`
	IsobaricInhPa []float64   `json:"isobaricInhPa,omitempty"`
	ValidTimes    []time.Time `json:"valid_times,omitempty"`
}

// Metadata summarizes a dataset without its bulk data.
type Metadata struct {
	Variables   []string          `json:"variables"`
	Dimensions  map[string]int    `json:"dimensions"`
	Coordinates Coordinates       `json:"coordinates"`
	Attributes  map[string]string `json:"attributes"`
}

// Slab is one 2D slice of a variable: a level and a valid time with its grid.
type Slab struct {
	Level     float64   `json:"level"`
	LevelKind LevelKind `json:"level_kind"`
	ValidTime time.Time `json:"valid_time"`
	Unit      string    `json:"unit,omitempty"`
	Values    [][]Value `json:"values"`
}

// DataResponse is the full JSON payload for the data endpoint.
type DataResponse struct {
	FileID     string            `json:"file_id"`
	Filename   string            `json:"filename"`
	Variables  []string          `json:"variables"`
	Dimensions map[string]int    `json:"dimensions"`
	Metadata   Metadata          `json:"metadata"`
	Data       map[string][]Slab `json:"data"`
}

// UnknownVariableError reports a data request for a variable the file does not contain.
type UnknownVariableError struct {
	Variable string
}

func (e *UnknownVariableError) Error() string {
	return "unknown variable: " + e.Variable
}

// Variables returns the sorted set of variable names in the dataset.
func (ds *Dataset) Variables() []string {
	seen := make(map[string]struct{})
	var names []string
	for i := range ds.Fields {
		name := ds.Fields[i].Name
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildMetadata derives the metadata view of a dataset. Grid axes come from
// the first field; GRIB files mixing grids are not supported by the decoder.
func BuildMetadata(ds *Dataset) Metadata {
	meta := Metadata{
		Variables:  ds.Variables(),
		Dimensions: map[string]int{},
		Attributes: ds.Attributes,
	}
	if meta.Attributes == nil {
		meta.Attributes = map[string]string{}
	}

	if len(ds.Fields) > 0 {
		first := &ds.Fields[0]
		meta.Coordinates.Latitude = first.Lats
		meta.Coordinates.Longitude = first.Lons
		meta.Dimensions["latitude"] = len(first.Lats)
		meta.Dimensions["longitude"] = len(first.Lons)
	}

	levels := isobaricLevels(ds.Fields)
	if len(levels) > 0 {
		meta.Coordinates.IsobaricInhPa = levels
		meta.Dimensions["isobaricInhPa"] = len(levels)
	}

	times := validTimes(ds.Fields)
	if len(times) > 0 {
		meta.Coordinates.ValidTimes = times
		meta.Dimensions["time"] = len(times)
	}

	return meta
}

// BuildDataResponse converts a dataset into the viewer JSON payload.
// When variable is non-empty only that variable is included; requesting a
// variable the file does not contain is an error. When level is non-nil the
// nearest available isobaric level is selected, matching how forecast tooling
// treats pressure-level queries; variables without isobaric levels are
// returned whole.
func BuildDataResponse(ds *Dataset, variable string, level *float64) (*DataResponse, error) {
	variables := ds.Variables()
	if variable != "" {
		if !contains(variables, variable) {
			return nil, &UnknownVariableError{Variable: variable}
		}
		variables = []string{variable}
	}

	meta := BuildMetadata(ds)
	data := make(map[string][]Slab, len(variables))

	for _, name := range variables {
		fields := fieldsByName(ds.Fields, name)
		if level != nil {
			fields = selectNearestLevel(fields, *level)
		}
		sortFields(fields)

		slabs := make([]Slab, 0, len(fields))
		for i := range fields {
			f := &fields[i]
			slabs = append(slabs, Slab{
				Level:     f.LevelValue,
				LevelKind: f.LevelKind,
				ValidTime: f.ValidTime,
				Unit:      f.Unit,
				Values:    f.Grid(),
			})
		}
		data[name] = slabs
	}

	return &DataResponse{
		FileID:     ds.FileID,
		Filename:   ds.Filename,
		Variables:  variables,
		Dimensions: meta.Dimensions,
		Metadata:   meta,
		Data:       data,
	}, nil
}

func fieldsByName(fields []Field, name string) []Field {
	var out []Field
	for i := range fields {
		if fields[i].Name == name {
			out = append(out, fields[i])
		}
	}
	return out
}

// selectNearestLevel keeps only the isobaric level closest to the query.
// Fields on non-isobaric surfaces pass through untouched.
func selectNearestLevel(fields []Field, level float64) []Field {
	best := math.Inf(1)
	found := false
	for i := range fields {
		if fields[i].LevelKind != LevelIsobaricInhPa {
			continue
		}
		d := math.Abs(fields[i].LevelValue - level)
		if d < best {
			best = d
			found = true
		}
	}
	if !found {
		return fields
	}

	var out []Field
	for i := range fields {
		f := fields[i]
		if f.LevelKind != LevelIsobaricInhPa {
			out = append(out, f)
			continue
		}
		if math.Abs(f.LevelValue-level) == best {
			out = append(out, f)
		}
	}
	return out
}

func sortFields(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		if !fields[i].ValidTime.Equal(fields[j].ValidTime) {
			return fields[i].ValidTime.Before(fields[j].ValidTime)
		}
		return fields[i].LevelValue > fields[j].LevelValue // high pressure (low altitude) first
	})
}

func isobaricLevels(fields []Field) []float64 {
	seen := make(map[float64]struct{})
	var levels []float64
	for i := range fields {
		if fields[i].LevelKind != LevelIsobaricInhPa {
			continue
		}
		v := fields[i].LevelValue
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		levels = append(levels, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
	return levels
}

func validTimes(fields []Field) []time.Time {
	seen := make(map[int64]struct{})
	var times []time.Time
	for i := range fields {
		t := fields[i].ValidTime
		if t.IsZero() {
			continue
		}
		key := t.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
