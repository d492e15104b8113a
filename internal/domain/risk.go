package domain

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// RiskLevel is how much noise Wikimedia adds to a country's published counts.
type RiskLevel string

const (
	RiskLow          RiskLevel = "low"
	RiskMedium       RiskLevel = "medium"
	RiskHigh         RiskLevel = "high"
	RiskNotPublished RiskLevel = "not_published"
)

//go:embed risk.yaml
var riskYAML []byte

type riskTable struct {
	Levels map[RiskLevel]struct {
		CI *float64 `yaml:"ci"`
	} `yaml:"levels"`
	Countries   map[RiskLevel][]string `yaml:"countries"`
	Unpublished struct {
		Cutoff  string            `yaml:"cutoff"`
		Legacy  map[string]string `yaml:"legacy"`
		Current map[string]string `yaml:"current"`
	} `yaml:"unpublished"`

	byCountry map[string]RiskLevel
}

var risks = mustLoadRiskTable(riskYAML)

func mustLoadRiskTable(data []byte) *riskTable {
	t, err := loadRiskTable(data)
	if err != nil {
		panic(err)
	}
	return t
}

func loadRiskTable(data []byte) (*riskTable, error) {
	var t riskTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode risk table: %w", err)
	}
	if !ValidMonth(t.Unpublished.Cutoff) {
		return nil, fmt.Errorf("risk table: invalid unpublished cutoff %q", t.Unpublished.Cutoff)
	}
	t.byCountry = make(map[string]RiskLevel)
	for level, codes := range t.Countries {
		if _, ok := t.Levels[level]; !ok {
			return nil, fmt.Errorf("risk table: countries listed under unknown level %q", level)
		}
		for _, code := range codes {
			t.byCountry[code] = level
		}
	}
	return &t, nil
}

// RiskLevelFor returns the risk level of a country. Countries missing from the
// table are low risk; an empty or unknown ("--") code is not published.
func RiskLevelFor(countryCode string) RiskLevel {
	if countryCode == "" || countryCode == "--" {
		return RiskNotPublished
	}
	if level, ok := risks.byCountry[countryCode]; ok {
		return level
	}
	return RiskLow
}

// CI returns the half-width of the 95% confidence interval for the level, and
// false when counts at this level are not published.
func (l RiskLevel) CI() (float64, bool) {
	lv, ok := risks.Levels[l]
	if !ok || lv.CI == nil {
		return 0, false
	}
	return *lv.CI, true
}

// ProtectedCountries returns the countries (code to name) whose counts are
// withheld for month.
func ProtectedCountries(month string) map[string]string {
	if month < risks.Unpublished.Cutoff {
		return risks.Unpublished.Legacy
	}
	return risks.Unpublished.Current
}

// ProtectedCodes returns the sorted codes of ProtectedCountries(month).
func ProtectedCodes(month string) []string {
	countries := ProtectedCountries(month)
	codes := make([]string, 0, len(countries))
	for code := range countries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
