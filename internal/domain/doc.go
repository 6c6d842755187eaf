// Package domain models GRIB (GRIdded Binary) meteorological files and the
// JSON structures the browser viewer consumes.
//
// # Data Source
//
// GRIB2 files come from numerical weather prediction centres (GFS, ECMWF,
// DWD ICON and others), either uploaded directly or fetched from a URL.
// Binary decoding is delegated to an external GRIB library; this package only
// works with the decoded fields.
//
// # GRIB Conventions
//
// Parameters:
//
//	A GRIB2 message identifies its physical quantity by the triple
//	(discipline, parameter category, parameter number) from the WMO code
//	tables, e.g. (0, 0, 0) = temperature in K, (0, 2, 2) = U wind component
//	in m/s. The decoder maps known triples to the short names weather tooling
//	uses (t, u, v, prmsl, ...). Unknown triples get a stable synthetic name
//	"d<D>c<C>n<N>" so no data is dropped.
//
// Levels:
//
//	The "first fixed surface" of a message determines its vertical level:
//	type 1 = ground surface, type 100 = isobaric level (value in Pa, exposed
//	as hPa to match the isobaricInhPa coordinate the viewer expects),
//	type 101 = mean sea level, type 103 = height above ground in metres.
//
// Grids:
//
//	Only latitude/longitude grids (grid definition template 0) are supported.
//	Coordinates are stored in micro-degrees and scaled by 1e-6. Values are
//	row-major with longitude varying fastest.
//
// Missing values:
//
//	Missing data points are NaN in memory. JSON has no NaN, so [Value]
//	serializes them as null, which the browser renderer skips.
//
// # Wind
//
// The viewer draws wind barbs from u/v component pairs. Speed is converted
// from m/s to knots client-side; the barb geometry (half barb 5 kt, full barb
// 10 kt, flag 50 kt) lives in the embedded web assets.
package domain
