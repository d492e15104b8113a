// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/geoeditors/internal/domain"
	"github.com/naka-gawa/geoeditors/internal/storage"
)

// CountryAggregate summarizes one country over the selected months.
type CountryAggregate struct {
	Code        string           `json:"country_code"`
	Name        string           `json:"country_name"`
	Sum         int              `json:"sum"`
	Mean        float64          `json:"mean"`
	Max         int              `json:"max"`
	Months      int              `json:"months"`
	Latest      int              `json:"latest"`
	LatestMonth string           `json:"latest_month"`
	Risk        domain.RiskLevel `json:"risk_level"`
	// Unpublished is set when the country has no published month in the selection.
	Unpublished bool `json:"unpublished"`
}

// MonthAggregate totals every selected country for one month.
type MonthAggregate struct {
	Month     string `json:"month"`
	Sum       int    `json:"sum"`
	Countries int    `json:"countries"`
}

// Point is one country's value for one month.
type Point struct {
	Month       string `json:"month"`
	Editors     int    `json:"editors"`
	Unpublished bool   `json:"unpublished,omitempty"`
}

// Series is one country's values ordered by month.
type Series struct {
	Code   string           `json:"country_code"`
	Name   string           `json:"country_name"`
	Risk   domain.RiskLevel `json:"risk_level"`
	Latest int              `json:"latest"`
	Points []Point          `json:"points"`
}

// Summary describes the distribution of per-country totals.
type Summary struct {
	Countries int     `json:"countries"`
	Total     int     `json:"total"`
	Median    float64 `json:"median"`
	Max       int     `json:"max"`
}

// Available lists what the dataset holds, for filter selectors.
type Available struct {
	Countries []domain.CountryRef `json:"countries"`
	Months    []string            `json:"months"`
	Projects  []string            `json:"projects"`
}

// Result is the answer to one query.
type Result struct {
	Filter    Filter                `json:"filter"`
	Records   []domain.EditorRecord `json:"records"`
	ByCountry []CountryAggregate    `json:"by_country"`
	ByMonth   []MonthAggregate      `json:"by_month"`
	Series    []Series              `json:"series"`
	Summary   Summary               `json:"summary"`
	Available Available             `json:"available"`
}

// Empty reports whether no record matched.
func (r *Result) Empty() bool { return len(r.Records) == 0 }

const (
	GroupByCountry = "country"
	GroupByMonth   = "month"
)

// Report is a Result grouped along one dimension, as the API and CLI print it.
type Report struct {
	Filter    Filter                `json:"filter"`
	GroupBy   string                `json:"group_by"`
	ByCountry []CountryAggregate    `json:"by_country,omitempty"`
	ByMonth   []MonthAggregate      `json:"by_month,omitempty"`
	Series    []Series              `json:"series,omitempty"`
	Summary   Summary               `json:"summary"`
	Records   []domain.EditorRecord `json:"records,omitempty"`
}

// Report groups r by month when groupBy is "month" and by country otherwise.
func (r *Result) Report(groupBy string, withRecords bool) Report {
	rep := Report{Filter: r.Filter, GroupBy: GroupByCountry, Summary: r.Summary}
	if groupBy == GroupByMonth {
		rep.GroupBy = GroupByMonth
		rep.ByMonth = r.ByMonth
		rep.Series = r.Series
	} else {
		rep.ByCountry = r.ByCountry
	}
	if withRecords {
		rep.Records = r.Records
	}
	return rep
}

// Aggregator answers queries against the stored dataset.
type Aggregator struct {
	store  storage.Store
	logger *logrus.Logger
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(store storage.Store, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger,
	}
}

// Query reloads the dataset and aggregates the records matching f. No match is
// an empty result, not an error.
func (a *Aggregator) Query(ctx context.Context, f Filter) (*Result, error) {
	ds, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	result := Aggregate(ds, f)
	a.logger.WithFields(logrus.Fields{
		"activity_level": result.Filter.ActivityLevel,
		"project":        result.Filter.Project,
		"countries":      len(result.Filter.Countries),
		"from":           result.Filter.From,
		"to":             result.Filter.To,
		"records":        len(result.Records),
	}).Debug("Query complete")
	return result, nil
}

// Snapshot aggregates a single month. A valid month wins; without one, a range
// already set on f is kept; with neither, the latest stored month is used.
func (a *Aggregator) Snapshot(ctx context.Context, f Filter, month string) (*Result, error) {
	ds, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	f = f.Normalize()
	switch {
	case domain.ValidMonth(month):
		f.From, f.To = month, month
	case f.From != "" || f.To != "":
	default:
		if months := ds.Months(); len(months) > 0 {
			latest := months[len(months)-1]
			f.From, f.To = latest, latest
		}
	}
	return Aggregate(ds, f), nil
}

// cell is one country's combined value for one month. Several records fall in
// the same cell when the filter leaves project or activity level open.
type cell struct {
	editors     int
	published   bool
	unpublished bool
}

// Aggregate runs f against ds.
func Aggregate(ds *domain.Dataset, f Filter) *Result {
	f = f.Normalize()
	result := &Result{
		Filter:    f,
		Records:   []domain.EditorRecord{},
		ByCountry: []CountryAggregate{},
		ByMonth:   []MonthAggregate{},
		Series:    []Series{},
		Available: available(ds),
	}

	names := make(map[string]string)
	cells := make(map[string]map[string]*cell) // country -> month -> cell
	if ds != nil {
		for _, r := range ds.Records {
			if !f.Match(r) {
				continue
			}
			result.Records = append(result.Records, r)
			if _, ok := names[r.CountryCode]; !ok {
				names[r.CountryCode] = r.CountryName
			}
			byMonth, ok := cells[r.CountryCode]
			if !ok {
				byMonth = make(map[string]*cell)
				cells[r.CountryCode] = byMonth
			}
			c, ok := byMonth[r.Month]
			if !ok {
				c = &cell{}
				byMonth[r.Month] = c
			}
			if r.Unpublished {
				c.unpublished = true
			} else {
				c.published = true
				c.editors += r.Editors
			}
		}
	}

	monthTotals := make(map[string][]float64)
	var countryTotals stats.Float64Data
	for code, byMonth := range cells {
		months := make([]string, 0, len(byMonth))
		for m := range byMonth {
			months = append(months, m)
		}
		sort.Strings(months)

		agg := CountryAggregate{Code: code, Name: names[code], Risk: domain.RiskLevelFor(code)}
		series := Series{Code: code, Name: names[code], Risk: agg.Risk, Points: make([]Point, 0, len(months))}
		var values stats.Float64Data
		for _, m := range months {
			c := byMonth[m]
			unpublished := !c.published
			series.Points = append(series.Points, Point{Month: m, Editors: c.editors, Unpublished: unpublished})
			if unpublished {
				continue
			}
			values = append(values, float64(c.editors))
			monthTotals[m] = append(monthTotals[m], float64(c.editors))
		}
		last := byMonth[months[len(months)-1]]
		agg.LatestMonth = months[len(months)-1]
		agg.Latest = last.editors
		series.Latest = last.editors

		if len(values) == 0 {
			agg.Unpublished = true
		} else {
			sum, _ := stats.Sum(values)
			mean, _ := stats.Mean(values)
			maximum, _ := stats.Max(values)
			agg.Sum = int(sum)
			agg.Mean = mean
			agg.Max = int(maximum)
			agg.Months = len(values)
			countryTotals = append(countryTotals, sum)
		}
		result.ByCountry = append(result.ByCountry, agg)
		result.Series = append(result.Series, series)
	}

	sort.Slice(result.ByCountry, func(i, j int) bool {
		a, b := result.ByCountry[i], result.ByCountry[j]
		if a.Sum != b.Sum {
			return a.Sum > b.Sum
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Code < b.Code
	})
	sort.Slice(result.Series, func(i, j int) bool {
		a, b := result.Series[i], result.Series[j]
		if a.Latest != b.Latest {
			return a.Latest > b.Latest
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Code < b.Code
	})

	for m, values := range monthTotals {
		sum, _ := stats.Sum(values)
		result.ByMonth = append(result.ByMonth, MonthAggregate{Month: m, Sum: int(sum), Countries: len(values)})
	}
	sort.Slice(result.ByMonth, func(i, j int) bool { return result.ByMonth[i].Month < result.ByMonth[j].Month })

	result.Summary.Countries = len(countryTotals)
	if len(countryTotals) > 0 {
		total, _ := countryTotals.Sum()
		median, _ := countryTotals.Median()
		maximum, _ := countryTotals.Max()
		result.Summary.Total = int(total)
		result.Summary.Median = median
		result.Summary.Max = int(maximum)
	}
	return result
}

func available(ds *domain.Dataset) Available {
	out := Available{Countries: ds.Countries(), Months: ds.Months(), Projects: []string{}}
	if out.Months == nil {
		out.Months = []string{}
	}
	if ds == nil {
		return out
	}
	seen := make(map[string]struct{})
	for _, r := range ds.Records {
		if _, ok := seen[r.Project]; !ok {
			seen[r.Project] = struct{}{}
			out.Projects = append(out.Projects, r.Project)
		}
	}
	sort.Strings(out.Projects)
	return out
}
