package fulfillment

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	RegionRestOfIreland = "REST OF IRELAND"
	RegionNorthIreland  = "NORTH IRELAND"
	RegionDublin        = "DUBLIN"
)

var ieCounties = []string{
	"CARLOW", "CAVAN", "CLARE", "CORK", "DONEGAL", "GALWAY", "KERRY", "KILDARE",
	"KILKENNY", "LAOIS", "LEITRIM", "LIMERICK", "LONGFORD", "LOUTH", "MAYO", "MEATH",
	"MONAGHAN", "OFFALY", "ROSCOMMON", "SLIGO", "TIPPERARY", "WATERFORD", "WESTMEATH",
	"WEXFORD", "WICKLOW",
}

var niCounties = []string{"ANTRIM", "ARMAGH", "DOWN", "FERMANAGH", "DERRY", "TYRONE"}

var countyAliases = map[string]string{
	"LONDONDERRY": "DERRY",
	"TIPP":        "TIPPERARY",
	"LAOIGHIS":    "LAOIS",
	"QUEENS":      "LAOIS",
	"KINGS":       "OFFALY",
}

var (
	dublinDistrictRe = regexp.MustCompile(`^(?:DUBLIN|D)\s*0*(\d{1,2}W?)$`)
	nonWordRe        = regexp.MustCompile(`[^A-Z0-9 ]+`)
	spacesRe         = regexp.MustCompile(`\s+`)

	countyCodes = buildCountyCodes()
)

func buildCountyCodes() map[string]bool {
	codes := map[string]bool{}
	for _, c := range ieCounties {
		codes["CO. "+c] = true
	}
	for _, c := range niCounties {
		codes["CO. "+c] = true
	}
	for i := 1; i <= 24; i++ {
		codes["DUBLIN "+strconv.Itoa(i)] = true
	}
	codes["DUBLIN 6W"] = true
	return codes
}

// CountyCodes lists every enumerated ExpressFreight county code.
func CountyCodes() []string {
	out := make([]string, 0, len(countyCodes))
	for _, c := range ieCounties {
		out = append(out, "CO. "+c)
	}
	for _, c := range niCounties {
		out = append(out, "CO. "+c)
	}
	for i := 1; i <= 24; i++ {
		out = append(out, "DUBLIN "+strconv.Itoa(i))
		if i == 6 {
			out = append(out, "DUBLIN 6W")
		}
	}
	return out
}

func IsCountyCode(code string) bool {
	return countyCodes[code]
}

func IsNICounty(code string) bool {
	for _, c := range niCounties {
		if code == "CO. "+c {
			return true
		}
	}
	return false
}

// NormalizeCounty maps free text such as "Co. Cork", "county cork", "D8" or
// "Londonderry" onto an enumerated county code. Dublin only maps when a
// postal district is given.
func NormalizeCounty(s string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return "", false
	}
	if countyCodes[v] {
		return v, true
	}

	v = strings.ReplaceAll(v, ".", " ")
	v = nonWordRe.ReplaceAllString(v, "")
	v = strings.TrimSpace(spacesRe.ReplaceAllString(v, " "))

	for _, p := range []string{"COUNTY ", "CO "} {
		v = strings.TrimPrefix(v, p)
	}
	v = strings.TrimSuffix(v, " COUNTY")
	v = strings.TrimSuffix(v, " CITY")

	if m := dublinDistrictRe.FindStringSubmatch(v); m != nil {
		district := m[1]
		code := "DUBLIN " + district
		if countyCodes[code] {
			return code, true
		}
		return "", false
	}

	if alias, ok := countyAliases[v]; ok {
		v = alias
	}
	if code := "CO. " + v; countyCodes[code] {
		return code, true
	}
	return "", false
}

// RegionFor guesses the ExpressFreight region from a shipping address.
func RegionFor(city, province, zip string) string {
	for _, s := range []string{city, province} {
		if strings.Contains(strings.ToLower(s), "dublin") {
			return RegionDublin
		}
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(zip)), "bt") {
		return RegionNorthIreland
	}
	return RegionRestOfIreland
}
