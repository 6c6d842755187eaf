// Command gribinfo decodes a local GRIB2 file and prints a summary of its
// variables, levels, grid, and valid times. Useful for inspecting a file
// before uploading it to the viewer.
//
// Usage:
//
//	go run ./cmd/gribinfo path/to/file.grib2
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/loganrenz/narduk-grib/internal/decoder"
	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/observability"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: gribinfo <file.grib2>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ds, err := decoder.New(logger, observability.NewMetricsForTesting()).Decode(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("File: %s\n", path)
	printAttributes(ds)
	printGrid(ds)
	printVariables(ds)
}

func printAttributes(ds *domain.Dataset) {
	keys := make([]string, 0, len(ds.Attributes))
	for k := range ds.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-12s %s\n", k+":", ds.Attributes[k])
	}
}

func printGrid(ds *domain.Dataset) {
	if len(ds.Fields) == 0 {
		return
	}
	f := &ds.Fields[0]
	fmt.Printf("  grid:        %dx%d (lat %.2f..%.2f, lon %.2f..%.2f)\n",
		len(f.Lats), len(f.Lons),
		f.Lats[0], f.Lats[len(f.Lats)-1],
		f.Lons[0], f.Lons[len(f.Lons)-1],
	)
}

func printVariables(ds *domain.Dataset) {
	type varSummary struct {
		unit   string
		levels map[string]struct{}
		times  map[time.Time]struct{}
	}

	summaries := map[string]*varSummary{}
	for i := range ds.Fields {
		f := &ds.Fields[i]
		s, ok := summaries[f.Name]
		if !ok {
			s = &varSummary{
				unit:   f.Unit,
				levels: map[string]struct{}{},
				times:  map[time.Time]struct{}{},
			}
			summaries[f.Name] = s
		}
		s.levels[levelLabel(f)] = struct{}{}
		s.times[f.ValidTime] = struct{}{}
	}

	fmt.Printf("\n%-10s %-8s %-6s %s\n", "VARIABLE", "UNIT", "TIMES", "LEVELS")
	for _, name := range ds.Variables() {
		s := summaries[name]
		levels := make([]string, 0, len(s.levels))
		for l := range s.levels {
			levels = append(levels, l)
		}
		sort.Strings(levels)
		fmt.Printf("%-10s %-8s %-6d %s\n", name, s.unit, len(s.times), strings.Join(levels, ", "))
	}
}

func levelLabel(f *domain.Field) string {
	if f.LevelKind == domain.LevelIsobaricInhPa {
		return fmt.Sprintf("%g hPa", f.LevelValue)
	}
	if f.LevelValue != 0 {
		return fmt.Sprintf("%s %g", f.LevelKind, f.LevelValue)
	}
	return string(f.LevelKind)
}
