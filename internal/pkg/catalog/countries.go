package catalog

import (
	"strings"
)

type countryInfo struct {
	alpha3 string
	region string
}

// ISO 3166-1 alpha-2 -> (alpha-3, region). Region labels follow the
// catalog's own grouping (Middle East and Caribbean split out), not the
// UN M49 scheme.
var countries = map[string]countryInfo{
	// Europe
	"AL": {"ALB", "Europe"}, "AD": {"AND", "Europe"}, "AT": {"AUT", "Europe"},
	"AX": {"ALA", "Europe"}, "BY": {"BLR", "Europe"}, "BE": {"BEL", "Europe"},
	"BA": {"BIH", "Europe"}, "BG": {"BGR", "Europe"}, "HR": {"HRV", "Europe"},
	"CY": {"CYP", "Europe"}, "CZ": {"CZE", "Europe"}, "DK": {"DNK", "Europe"},
	"EE": {"EST", "Europe"}, "FI": {"FIN", "Europe"}, "FR": {"FRA", "Europe"},
	"FO": {"FRO", "Europe"}, "DE": {"DEU", "Europe"}, "GI": {"GIB", "Europe"},
	"GR": {"GRC", "Europe"}, "GG": {"GGY", "Europe"}, "HU": {"HUN", "Europe"},
	"IS": {"ISL", "Europe"}, "IE": {"IRL", "Europe"}, "IM": {"IMN", "Europe"},
	"IT": {"ITA", "Europe"}, "JE": {"JEY", "Europe"}, "LV": {"LVA", "Europe"},
	"LI": {"LIE", "Europe"}, "LT": {"LTU", "Europe"}, "LU": {"LUX", "Europe"},
	"MT": {"MLT", "Europe"}, "MD": {"MDA", "Europe"}, "MC": {"MCO", "Europe"},
	"ME": {"MNE", "Europe"}, "NL": {"NLD", "Europe"}, "MK": {"MKD", "Europe"},
	"NO": {"NOR", "Europe"}, "PL": {"POL", "Europe"}, "PT": {"PRT", "Europe"},
	"RO": {"ROU", "Europe"}, "RU": {"RUS", "Europe"}, "SM": {"SMR", "Europe"},
	"RS": {"SRB", "Europe"}, "SK": {"SVK", "Europe"}, "SI": {"SVN", "Europe"},
	"ES": {"ESP", "Europe"}, "SJ": {"SJM", "Europe"}, "SE": {"SWE", "Europe"},
	"CH": {"CHE", "Europe"}, "UA": {"UKR", "Europe"}, "GB": {"GBR", "Europe"},
	"VA": {"VAT", "Europe"},

	// Middle East
	"AE": {"ARE", "Middle East"}, "BH": {"BHR", "Middle East"},
	"IL": {"ISR", "Middle East"}, "IQ": {"IRQ", "Middle East"},
	"IR": {"IRN", "Middle East"}, "JO": {"JOR", "Middle East"},
	"KW": {"KWT", "Middle East"}, "LB": {"LBN", "Middle East"},
	"OM": {"OMN", "Middle East"}, "PS": {"PSE", "Middle East"},
	"QA": {"QAT", "Middle East"}, "SA": {"SAU", "Middle East"},
	"SY": {"SYR", "Middle East"}, "TR": {"TUR", "Middle East"},
	"YE": {"YEM", "Middle East"},

	// Asia
	"AF": {"AFG", "Asia"}, "AM": {"ARM", "Asia"}, "AZ": {"AZE", "Asia"},
	"BD": {"BGD", "Asia"}, "BT": {"BTN", "Asia"}, "BN": {"BRN", "Asia"},
	"KH": {"KHM", "Asia"}, "CN": {"CHN", "Asia"}, "GE": {"GEO", "Asia"},
	"HK": {"HKG", "Asia"}, "IN": {"IND", "Asia"}, "ID": {"IDN", "Asia"},
	"JP": {"JPN", "Asia"}, "KZ": {"KAZ", "Asia"}, "KG": {"KGZ", "Asia"},
	"LA": {"LAO", "Asia"}, "MO": {"MAC", "Asia"}, "MY": {"MYS", "Asia"},
	"MV": {"MDV", "Asia"}, "MN": {"MNG", "Asia"}, "MM": {"MMR", "Asia"},
	"NP": {"NPL", "Asia"}, "KP": {"PRK", "Asia"}, "PK": {"PAK", "Asia"},
	"PH": {"PHL", "Asia"}, "SG": {"SGP", "Asia"}, "KR": {"KOR", "Asia"},
	"LK": {"LKA", "Asia"}, "TW": {"TWN", "Asia"}, "TJ": {"TJK", "Asia"},
	"TH": {"THA", "Asia"}, "TL": {"TLS", "Asia"}, "TM": {"TKM", "Asia"},
	"UZ": {"UZB", "Asia"}, "VN": {"VNM", "Asia"},

	// Africa
	"DZ": {"DZA", "Africa"}, "AO": {"AGO", "Africa"}, "BJ": {"BEN", "Africa"},
	"BW": {"BWA", "Africa"}, "BF": {"BFA", "Africa"}, "BI": {"BDI", "Africa"},
	"CV": {"CPV", "Africa"}, "CM": {"CMR", "Africa"}, "CF": {"CAF", "Africa"},
	"TD": {"TCD", "Africa"}, "KM": {"COM", "Africa"}, "CG": {"COG", "Africa"},
	"CD": {"COD", "Africa"}, "CI": {"CIV", "Africa"}, "DJ": {"DJI", "Africa"},
	"EG": {"EGY", "Africa"}, "GQ": {"GNQ", "Africa"}, "ER": {"ERI", "Africa"},
	"SZ": {"SWZ", "Africa"}, "ET": {"ETH", "Africa"}, "GA": {"GAB", "Africa"},
	"GM": {"GMB", "Africa"}, "GH": {"GHA", "Africa"}, "GN": {"GIN", "Africa"},
	"GW": {"GNB", "Africa"}, "KE": {"KEN", "Africa"}, "LS": {"LSO", "Africa"},
	"LR": {"LBR", "Africa"}, "LY": {"LBY", "Africa"}, "MG": {"MDG", "Africa"},
	"MW": {"MWI", "Africa"}, "ML": {"MLI", "Africa"}, "MR": {"MRT", "Africa"},
	"MU": {"MUS", "Africa"}, "YT": {"MYT", "Africa"}, "MA": {"MAR", "Africa"},
	"MZ": {"MOZ", "Africa"}, "NA": {"NAM", "Africa"}, "NE": {"NER", "Africa"},
	"NG": {"NGA", "Africa"}, "RE": {"REU", "Africa"}, "RW": {"RWA", "Africa"},
	"SH": {"SHN", "Africa"}, "ST": {"STP", "Africa"}, "SN": {"SEN", "Africa"},
	"SC": {"SYC", "Africa"}, "SL": {"SLE", "Africa"}, "SO": {"SOM", "Africa"},
	"ZA": {"ZAF", "Africa"}, "SS": {"SSD", "Africa"}, "SD": {"SDN", "Africa"},
	"TZ": {"TZA", "Africa"}, "TG": {"TGO", "Africa"}, "TN": {"TUN", "Africa"},
	"UG": {"UGA", "Africa"}, "EH": {"ESH", "Africa"}, "ZM": {"ZMB", "Africa"},
	"ZW": {"ZWE", "Africa"},

	// North America
	"CA": {"CAN", "North America"}, "US": {"USA", "North America"},
	"MX": {"MEX", "North America"}, "BM": {"BMU", "North America"},
	"GL": {"GRL", "North America"}, "PM": {"SPM", "North America"},

	// Central America
	"BZ": {"BLZ", "Central America"}, "CR": {"CRI", "Central America"},
	"SV": {"SLV", "Central America"}, "GT": {"GTM", "Central America"},
	"HN": {"HND", "Central America"}, "NI": {"NIC", "Central America"},
	"PA": {"PAN", "Central America"},

	// Caribbean
	"AG": {"ATG", "Caribbean"}, "AI": {"AIA", "Caribbean"},
	"AW": {"ABW", "Caribbean"}, "BS": {"BHS", "Caribbean"},
	"BB": {"BRB", "Caribbean"}, "BQ": {"BES", "Caribbean"},
	"KY": {"CYM", "Caribbean"}, "CU": {"CUB", "Caribbean"},
	"CW": {"CUW", "Caribbean"}, "DM": {"DMA", "Caribbean"},
	"DO": {"DOM", "Caribbean"}, "GD": {"GRD", "Caribbean"},
	"GP": {"GLP", "Caribbean"}, "HT": {"HTI", "Caribbean"},
	"JM": {"JAM", "Caribbean"}, "MQ": {"MTQ", "Caribbean"},
	"MS": {"MSR", "Caribbean"}, "PR": {"PRI", "Caribbean"},
	"BL": {"BLM", "Caribbean"}, "KN": {"KNA", "Caribbean"},
	"LC": {"LCA", "Caribbean"}, "MF": {"MAF", "Caribbean"},
	"VC": {"VCT", "Caribbean"}, "SX": {"SXM", "Caribbean"},
	"TT": {"TTO", "Caribbean"}, "TC": {"TCA", "Caribbean"},
	"VG": {"VGB", "Caribbean"}, "VI": {"VIR", "Caribbean"},

	// South America
	"AR": {"ARG", "South America"}, "BO": {"BOL", "South America"},
	"BR": {"BRA", "South America"}, "CL": {"CHL", "South America"},
	"CO": {"COL", "South America"}, "EC": {"ECU", "South America"},
	"FK": {"FLK", "South America"}, "GF": {"GUF", "South America"},
	"GY": {"GUY", "South America"}, "PY": {"PRY", "South America"},
	"PE": {"PER", "South America"}, "SR": {"SUR", "South America"},
	"UY": {"URY", "South America"}, "VE": {"VEN", "South America"},

	// Oceania
	"AS": {"ASM", "Oceania"}, "AU": {"AUS", "Oceania"},
	"CK": {"COK", "Oceania"}, "FJ": {"FJI", "Oceania"},
	"PF": {"PYF", "Oceania"}, "GU": {"GUM", "Oceania"},
	"KI": {"KIR", "Oceania"}, "MH": {"MHL", "Oceania"},
	"FM": {"FSM", "Oceania"}, "NR": {"NRU", "Oceania"},
	"NC": {"NCL", "Oceania"}, "NZ": {"NZL", "Oceania"},
	"NU": {"NIU", "Oceania"}, "NF": {"NFK", "Oceania"},
	"MP": {"MNP", "Oceania"}, "PW": {"PLW", "Oceania"},
	"PG": {"PNG", "Oceania"}, "PN": {"PCN", "Oceania"},
	"WS": {"WSM", "Oceania"}, "SB": {"SLB", "Oceania"},
	"TK": {"TKL", "Oceania"}, "TO": {"TON", "Oceania"},
	"TV": {"TUV", "Oceania"}, "VU": {"VUT", "Oceania"},
	"WF": {"WLF", "Oceania"},

	// Remote territories
	"AQ": {"ATA", "Other"}, "BV": {"BVT", "Other"}, "IO": {"IOT", "Other"},
	"TF": {"ATF", "Other"}, "HM": {"HMD", "Other"}, "GS": {"SGS", "Other"},
	"CC": {"CCK", "Other"}, "CX": {"CXR", "Other"}, "UM": {"UMI", "Other"},
}

// alpha3ToAlpha2 is derived from the table above at init
var alpha3ToAlpha2 = func() map[string]string {
	m := make(map[string]string, len(countries))
	for a2, info := range countries {
		m[info.alpha3] = a2
	}
	return m
}()

// IsValidISO2 reports whether code is a known ISO-3166 alpha-2 code.
// The code must already be upper-cased.
func IsValidISO2(code string) bool {
	_, ok := countries[code]
	return ok
}

// NormalizeCountryCode upper-cases a raw country code and converts alpha-3
// to alpha-2 where a mapping exists. Returns false when the code does not
// resolve to a valid alpha-2 code.
func NormalizeCountryCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) == 3 {
		if a2, ok := alpha3ToAlpha2[code]; ok {
			return a2, true
		}
		return code, false
	}
	if IsValidISO2(code) {
		return code, true
	}
	return code, false
}

// RegionForCountry returns the catalog region label for an alpha-2 code,
// or "" when unknown.
func RegionForCountry(iso2 string) string {
	if info, ok := countries[iso2]; ok {
		return info.region
	}
	return ""
}
