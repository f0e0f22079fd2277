// Package domain models apiary scale readings and the weight segments derived from them.
//
// # Data Source
//
// Readings come from connected hive scales operated by several providers. Each provider
// drops periodic export files into the raw data directory; the ETL combines every file
// into one reading table before cleaning. Columns shared by all providers:
//
//	bal    scale identifier ("balance")
//	const  provider constant, e.g. "LAB"
//	time   timestamp string, "YYYY-MM-DD HH:MM:SS" or RFC 3339
//	lat    latitude in decimal degrees
//	lon    longitude in decimal degrees
//	poids  measured weight in grams
//
// Provider exports also carry name, ruche (hive id), qloc (location quality) and activ
// (activity flag). These are dropped during cleaning.
//
// # Provider Conventions
//
// Coordinate order:
//
//	The "LAB" provider exports latitude and longitude swapped. Historically the whole
//	combined table was swapped as soon as one LAB row was present, not only the LAB rows.
//	[SwapGlobal] reproduces that behaviour and is the default; [SwapRowScoped] limits the
//	swap to LAB rows.
//
// Timestamps:
//
//	Timestamps are compared as strings against the configured minimum date, so every
//	provider must emit zero-padded, year-first timestamps. Lexicographic order is then
//	chronological order.
//
// Weight:
//
//	Weights outside the open interval (weight_min, weight_max) are sensor faults (empty
//	platform, overload) and are discarded. Abrupt steps inside the interval (a super
//	added, a frame removed) are corrected per scale with a z-score test on first
//	differences; see the cleaning package.
//
// # Segmentation
//
// Each (year, scale) weight trajectory inside the season window is approximated by a
// continuous piecewise-linear function. Day offsets count whole days since January 1 of the
// year. A segment is the stretch between two consecutive breakpoints (or a breakpoint and
// the first/last observed day); its slope is the daily weight gain in grams per day.
//
// Weather indicators are summarised per segment by counting days in fixed bands:
//
//	Temperature (°C):   <=15 too cold | (15,30] optimal | (30,40] hot | >40 too hot
//	Wind speed (max):   <10.8 weak | (10.8,25.2) average | >25.2 strong
//	Wind direction:     eight 45° octants centred on N, NE, E, SE, S, SW, W, NW
//	Weather code (WMO): 0-19 -> 1, 20-29 -> 2, ... 70-79 -> 7, 80-99 -> 8
//
// Wind speeds of exactly 10.8 or 25.2 fall in no band.
package domain
