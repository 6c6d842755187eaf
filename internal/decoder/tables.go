package decoder

import (
	"fmt"
	"math"

	"github.com/loganrenz/narduk-grib/internal/domain"
)

// paramKey identifies a GRIB2 parameter by WMO code table entries.
type paramKey struct {
	Discipline uint8
	Category   uint8
	Number     uint8
}

type paramInfo struct {
	Name        string
	Description string
	Unit        string
}

// paramTable maps the common meteorological parameters to the short names
// used by forecast tooling (and expected by the viewer). Source: WMO GRIB2
// code table 4.2. Unlisted parameters get a synthetic name from paramFor.
var paramTable = map[paramKey]paramInfo{
	{0, 0, 0}: {"t", "Temperature", "K"},
	{0, 0, 4}: {"tmax", "Maximum temperature", "K"},
	{0, 0, 5}: {"tmin", "Minimum temperature", "K"},
	{0, 0, 6}: {"dpt", "Dew point temperature", "K"},

	{0, 1, 0}:  {"q", "Specific humidity", "kg kg-1"},
	{0, 1, 1}:  {"r", "Relative humidity", "%"},
	{0, 1, 7}:  {"prate", "Precipitation rate", "kg m-2 s-1"},
	{0, 1, 8}:  {"tp", "Total precipitation", "kg m-2"},
	{0, 1, 11}: {"sde", "Snow depth", "m"},

	{0, 2, 0}:  {"wdir", "Wind direction", "deg"},
	{0, 2, 1}:  {"ws", "Wind speed", "m s-1"},
	{0, 2, 2}:  {"u", "U component of wind", "m s-1"},
	{0, 2, 3}:  {"v", "V component of wind", "m s-1"},
	{0, 2, 8}:  {"w", "Vertical velocity (pressure)", "Pa s-1"},
	{0, 2, 22}: {"gust", "Wind speed (gust)", "m s-1"},

	{0, 3, 0}: {"pres", "Pressure", "Pa"},
	{0, 3, 1}: {"prmsl", "Pressure reduced to MSL", "Pa"},
	{0, 3, 5}: {"gh", "Geopotential height", "gpm"},

	{0, 6, 1}: {"tcc", "Total cloud cover", "%"},
	{0, 7, 6}: {"cape", "Convective available potential energy", "J kg-1"},

	{2, 0, 0}: {"lsm", "Land-sea mask", "proportion"},
}

// paramFor resolves a parameter triple, synthesizing a stable name for
// parameters outside the table so no message is dropped.
func paramFor(discipline, category, number uint8) paramInfo {
	if info, ok := paramTable[paramKey{discipline, category, number}]; ok {
		return info
	}
	name := fmt.Sprintf("d%dc%dn%d", discipline, category, number)
	return paramInfo{Name: name, Description: "Unknown parameter " + name}
}

// centreNames maps WMO originating centre codes to the conventional
// identifiers cfgrib exposes as GRIB_centre.
var centreNames = map[uint16]string{
	7:  "kwbc", // NCEP
	34: "rjtd", // JMA
	54: "cwao", // CMC
	74: "egrr", // UK Met Office
	78: "edzw", // DWD
	84: "lfpw", // Météo-France
	98: "ecmf", // ECMWF
}

func centreName(code uint16) string {
	if name, ok := centreNames[code]; ok {
		return name
	}
	return fmt.Sprintf("%d", code)
}

var disciplineNames = map[uint8]string{
	0:  "meteorological",
	1:  "hydrological",
	2:  "land surface",
	3:  "satellite remote sensing",
	10: "oceanographic",
}

func disciplineName(code uint8) string {
	if name, ok := disciplineNames[code]; ok {
		return name
	}
	return fmt.Sprintf("%d", code)
}

// surfaceLevel converts a GRIB2 fixed-surface (type, scale, value) into the
// viewer's level kinds. Isobaric surfaces arrive in Pa and are exposed in hPa
// to match the isobaricInhPa coordinate.
func surfaceLevel(surfaceType uint8, scale uint8, value uint32) (domain.LevelKind, float64) {
	v := scaledValue(scale, value)
	switch surfaceType {
	case 1:
		return domain.LevelSurface, 0
	case 100:
		return domain.LevelIsobaricInhPa, v / 100
	case 101:
		return domain.LevelMeanSea, 0
	case 103:
		return domain.LevelHeightAboveGround, v
	default:
		return domain.LevelUnknown, v
	}
}

// scaledValue applies the GRIB scale factor (actual = value * 10^-scale).
// 255 is the "missing" sentinel for the scale octet.
func scaledValue(scale uint8, value uint32) float64 {
	if scale == 0 || scale == 255 {
		return float64(value)
	}
	return float64(value) / math.Pow10(int(scale))
}
