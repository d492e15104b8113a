package domain

import (
	_ "embed"
	"strings"
)

//go:embed countries.tsv
var countriesTSV string

// Country is an ISO 3166-1 entry.
type Country struct {
	Alpha2 string
	Alpha3 string
	Name   string
}

var countriesByAlpha2 = parseCountries(countriesTSV)

func parseCountries(data string) map[string]Country {
	out := make(map[string]Country)
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) != 3 {
			continue
		}
		out[fields[0]] = Country{Alpha2: fields[0], Alpha3: fields[1], Name: fields[2]}
	}
	return out
}

// LookupCountry returns the ISO entry for an alpha-2 code.
func LookupCountry(alpha2 string) (Country, bool) {
	c, ok := countriesByAlpha2[strings.ToUpper(alpha2)]
	return c, ok
}

// Alpha3 converts an alpha-2 code to alpha-3, the key used by boundary files.
func Alpha3(alpha2 string) (string, bool) {
	c, ok := LookupCountry(alpha2)
	return c.Alpha3, ok
}
