// Package zonemap joins historical zone records to country polygons and
// colors them by carbon intensity.
package zonemap

// Zone pairs a dataset zone id with the ISO 3166-1 alpha-3 id of its polygon.
type Zone struct {
	ID   string
	ISO3 string
}

// Zones is ordered; when several zones share a polygon the first one wins
// the reverse lookup.
var Zones = []Zone{
	{"AT", "AUT"}, {"AU", "AUS"}, {"BA", "BIH"}, {"BE", "BEL"}, {"BG", "BGR"},
	{"BR", "BRA"}, {"CH", "CHE"}, {"CR", "CRI"}, {"CY", "CYP"}, {"CZ", "CZE"},
	{"DE", "DEU"}, {"DK", "DNK"}, {"EE", "EST"}, {"ES", "ESP"}, {"FI", "FIN"},
	{"FR", "FRA"}, {"GB-NIR", "GBR"}, {"GB", "GBR"}, {"GR", "GRC"}, {"HK", "HKG"},
	{"HR", "HRV"}, {"HU", "HUN"}, {"ID", "IDN"}, {"IE", "IRL"}, {"IL", "ISR"},
	{"IN-NE", "IND"}, {"IN", "IND"}, {"IS", "ISL"}, {"IT", "ITA"}, {"JP", "JPN"},
	{"KE", "KEN"}, {"KR", "KOR"}, {"LT", "LTU"}, {"LU", "LUX"}, {"LV", "LVA"},
	{"MY", "MYS"}, {"NI", "NIC"}, {"NL", "NLD"}, {"NO", "NOR"}, {"NZ", "NZL"},
	{"PA", "PAN"}, {"PE", "PER"}, {"PH", "PHL"}, {"PL", "POL"}, {"PT", "PRT"},
	{"QA", "QAT"}, {"RO", "ROU"}, {"RS", "SRB"}, {"SE", "SWE"}, {"SG", "SGP"},
	{"SI", "SVN"}, {"SK", "SVK"}, {"TR", "TUR"}, {"TW", "TWN"}, {"US", "USA"},
	{"UY", "URY"}, {"ZA", "ZAF"},
}

var (
	byZone = make(map[string]string, len(Zones))
	byISO3 = make(map[string]string, len(Zones))
)

func init() {
	for _, z := range Zones {
		byZone[z.ID] = z.ISO3
		if _, ok := byISO3[z.ISO3]; !ok {
			byISO3[z.ISO3] = z.ID
		}
	}
}

// ISO3 returns the polygon id for a zone.
func ISO3(zoneID string) (string, bool) {
	iso, ok := byZone[zoneID]
	return iso, ok
}

// ZoneFor returns the first zone mapped to a polygon id.
func ZoneFor(iso3 string) (string, bool) {
	id, ok := byISO3[iso3]
	return id, ok
}
