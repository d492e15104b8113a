package usecase

import (
	"strings"

	"github.com/naka-gawa/geoeditors/internal/domain"
)

// Filter selects records. Zero values mean "no filtering on this field".
type Filter struct {
	ActivityLevel string   `json:"activity_level,omitempty"`
	Project       string   `json:"project,omitempty"`
	Countries     []string `json:"countries,omitempty"`
	From          string   `json:"from,omitempty"` // inclusive "YYYY-MM"
	To            string   `json:"to,omitempty"`   // inclusive "YYYY-MM"
}

// Normalize returns a filter where every value that cannot match anything is
// dropped instead of rejected: an unknown activity level or a malformed month
// stops filtering on that field. A reversed range is swapped.
func (f Filter) Normalize() Filter {
	out := Filter{Project: strings.TrimSpace(f.Project)}

	if level, ok := domain.ParseActivityLevel(strings.TrimSpace(f.ActivityLevel)); ok {
		out.ActivityLevel = string(level)
	}

	seen := make(map[string]struct{}, len(f.Countries))
	for _, c := range f.Countries {
		for _, part := range strings.Split(c, ",") {
			code := strings.ToUpper(strings.TrimSpace(part))
			if code == "" {
				continue
			}
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			out.Countries = append(out.Countries, code)
		}
	}

	if from := strings.TrimSpace(f.From); domain.ValidMonth(from) {
		out.From = from
	}
	if to := strings.TrimSpace(f.To); domain.ValidMonth(to) {
		out.To = to
	}
	if out.From != "" && out.To != "" && out.From > out.To {
		out.From, out.To = out.To, out.From
	}
	return out
}

// Match reports whether r passes a normalized filter.
func (f Filter) Match(r domain.EditorRecord) bool {
	if f.ActivityLevel != "" && string(r.ActivityLevel) != f.ActivityLevel {
		return false
	}
	if f.Project != "" && r.Project != f.Project {
		return false
	}
	if f.From != "" && r.Month < f.From {
		return false
	}
	if f.To != "" && r.Month > f.To {
		return false
	}
	if len(f.Countries) == 0 {
		return true
	}
	for _, c := range f.Countries {
		if r.CountryCode == c {
			return true
		}
	}
	return false
}
