package web

import (
	"fmt"
	"html/template"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/naka-gawa/geoeditors/internal/domain"
	"github.com/naka-gawa/geoeditors/internal/geo"
	"github.com/naka-gawa/geoeditors/internal/usecase"
)

const notPublishedText = "Data not published for safety reasons"

// worldBounds is the map extent when no country has geometry.
var worldBounds = [2][2]float64{{-60, -180}, {85, 180}}

var printer = message.NewPrinter(language.English)

// page holds what every view renders around its chart.
type page struct {
	Title     string
	Active    string
	Filter    usecase.Filter
	Levels    []domain.ActivityLevel
	Available usecase.Available
	Selected  map[string]bool
	Notice    string
}

func newPage(title, active string, result *usecase.Result) page {
	selected := make(map[string]bool, len(result.Filter.Countries))
	for _, c := range result.Filter.Countries {
		selected[c] = true
	}
	return page{
		Title:     title,
		Active:    active,
		Filter:    result.Filter,
		Levels:    domain.ActivityLevels,
		Available: result.Available,
		Selected:  selected,
	}
}

// MapLabel places a country's value on the map.
type MapLabel struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Editors int     `json:"editors"`
}

// MapView is the template data of the choropleth page.
type MapView struct {
	page
	Month     string
	Features  geo.FeatureCollection
	LegendMax int
	Stops     []string
	Bounds    [2][2]float64
	Labels    []MapLabel
}

// NewMapView joins the per-country aggregates with their boundaries. b may be
// nil when no boundaries file is available yet.
func NewMapView(result *usecase.Result, b *geo.Boundaries, labels int) *MapView {
	view := &MapView{
		page:     newPage("Geoeditors Map", "map", result),
		Features: geo.FeatureCollection{Type: "FeatureCollection", Features: []geo.Feature{}},
		Stops:    ViridisStops(),
		Bounds:   worldBounds,
		Labels:   []MapLabel{},
	}
	view.Month = periodLabel(result.Filter.From, result.Filter.To)

	maxEditors := 0
	for _, c := range result.ByCountry {
		if published(c) && mapValue(c) > maxEditors {
			maxEditors = mapValue(c)
		}
	}
	view.LegendMax = LegendMax(maxEditors)

	switch {
	case result.Empty():
		view.Notice = "No data found for the selected parameters."
		return view
	case b == nil:
		view.Notice = "Country boundaries are not available yet; run an update to download them."
		return view
	}

	var shown []string
	for _, c := range result.ByCountry {
		alpha3, ok := domain.Alpha3(c.Code)
		if !ok {
			continue
		}
		f, ok := b.Feature(alpha3)
		if !ok {
			continue
		}
		editors := -1
		fill, border := UnpublishedColor, "#303030"
		if published(c) {
			editors = mapValue(c)
			fill, border = Color(editors, view.LegendMax), "gray"
			shown = append(shown, alpha3)
		}
		f.Properties["name"] = c.Name
		f.Properties["country_code"] = c.Code
		f.Properties["editors"] = editors
		f.Properties["hover_text"] = mapHoverText(c)
		f.Properties["fill"] = fill
		f.Properties["border"] = border
		view.Features.Features = append(view.Features.Features, f)

		if editors >= 0 && len(view.Labels) < labels {
			if ll, ok := b.LabelPoint(alpha3); ok {
				view.Labels = append(view.Labels, MapLabel{
					Code:    c.Code,
					Name:    c.Name,
					Lat:     ll.Lat.Degrees(),
					Lng:     ll.Lng.Degrees(),
					Editors: editors,
				})
			}
		}
	}
	if rect := b.Bounds(shown...); !rect.IsEmpty() {
		view.Bounds = geo.LatLngBounds(rect)
	}
	return view
}

// periodLabel names the months a view covers; either end may be open.
func periodLabel(from, to string) string {
	switch {
	case from == to:
		return from
	case to == "":
		return "since " + from
	case from == "":
		return "until " + to
	default:
		return from + " to " + to
	}
}

func published(c usecase.CountryAggregate) bool {
	return !c.Unpublished && c.Risk != domain.RiskNotPublished
}

// mapValue is the mean over the selected months, which is the month's value
// when a single month is shown.
func mapValue(c usecase.CountryAggregate) int {
	return int(math.Round(c.Mean))
}

func mapHoverText(c usecase.CountryAggregate) string {
	var sb strings.Builder
	sb.WriteString("<b>" + template.HTMLEscapeString(c.Name) + "</b><br>")
	if !published(c) {
		sb.WriteString(notPublishedText)
		return sb.String()
	}
	editors := mapValue(c)
	sb.WriteString(printer.Sprintf("Editors: %d<br>", editors))
	if ci, ok := c.Risk.CI(); ok {
		lower := int(math.Max(0, float64(editors)-ci))
		upper := int(float64(editors) + ci)
		sb.WriteString(printer.Sprintf("95%% CI: %d to %d<br>", lower, upper))
	}
	return sb.String()
}

// Trace is one Plotly scatter trace.
type Trace struct {
	X             []string  `json:"x"`
	Y             []int     `json:"y"`
	Name          string    `json:"name"`
	Mode          string    `json:"mode"`
	Line          TraceLine `json:"line"`
	ErrorY        *ErrorBar `json:"error_y,omitempty"`
	HoverText     []string  `json:"hovertext"`
	HoverTemplate string    `json:"hovertemplate"`
	ShowLegend    *bool     `json:"showlegend,omitempty"`
}

// TraceLine styles a trace's line.
type TraceLine struct {
	Width int    `json:"width"`
	Color string `json:"color,omitempty"`
	Dash  string `json:"dash,omitempty"`
}

// ErrorBar draws a constant error bar around every point.
type ErrorBar struct {
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Visible   bool    `json:"visible"`
	Color     string  `json:"color"`
	Thickness int     `json:"thickness"`
	Width     int     `json:"width"`
}

// Figure is a Plotly figure rendered client side.
type Figure struct {
	Data   []Trace        `json:"data"`
	Layout map[string]any `json:"layout"`
}

// TrendsView is the template data of the trends page.
type TrendsView struct {
	page
	Figure *Figure
}

// NewTrendsView plots one line per country. Without a country selection it
// keeps the topN countries by latest value.
func NewTrendsView(result *usecase.Result, topN int) *TrendsView {
	view := &TrendsView{page: newPage("Geoeditors Trends", "trends", result)}

	series := result.Series
	if len(result.Filter.Countries) == 0 && len(series) > topN {
		series = series[:topN]
		view.Notice = fmt.Sprintf("Showing the %d countries with the most editors in the latest month. Select countries to compare others.", topN)
	}
	if len(series) == 0 {
		view.Notice = "No data available for the selected parameters."
		return view
	}

	hide := false
	fig := &Figure{Data: []Trace{}, Layout: trendsLayout(result.Filter)}
	for _, s := range series {
		var pub, unpub Trace
		for _, p := range s.Points {
			if p.Unpublished {
				unpub.X = append(unpub.X, p.Month)
				unpub.Y = append(unpub.Y, 0)
				unpub.HoverText = append(unpub.HoverText, notPublishedText)
				continue
			}
			pub.X = append(pub.X, p.Month)
			pub.Y = append(pub.Y, p.Editors)
			pub.HoverText = append(pub.HoverText, trendHoverText(s, p.Editors))
		}
		if len(pub.X) > 0 {
			pub.Name = s.Name
			pub.Mode = "lines"
			pub.Line = TraceLine{Width: 2}
			ci, _ := s.Risk.CI()
			pub.ErrorY = &ErrorBar{Type: "constant", Value: ci, Visible: true, Color: "rgba(68, 68, 68, 0.3)", Thickness: 1}
			pub.HoverTemplate = "%{hovertext}<extra></extra>"
			fig.Data = append(fig.Data, pub)
		}
		if len(unpub.X) > 0 {
			unpub.Name = s.Name + " (unpublished)"
			unpub.Mode = "lines"
			unpub.Line = TraceLine{Width: 1, Color: "rgba(128, 128, 128, 0.3)", Dash: "dot"}
			unpub.HoverTemplate = "%{hovertext}<extra></extra>"
			unpub.ShowLegend = &hide
			fig.Data = append(fig.Data, unpub)
		}
	}
	view.Figure = fig
	return view
}

func trendHoverText(s usecase.Series, editors int) string {
	if ci, ok := s.Risk.CI(); ok {
		return printer.Sprintf("%s: %d ± %s", s.Code, editors, strconv.FormatFloat(ci, 'f', -1, 64))
	}
	return printer.Sprintf("%s: %d", s.Code, editors)
}

func trendsLayout(f usecase.Filter) map[string]any {
	project, level := f.Project, f.ActivityLevel
	if project == "" {
		project = "all projects"
	}
	if level == "" {
		level = "all"
	}
	return map[string]any{
		"title":         fmt.Sprintf("Editor Count Trends - %s - %s edits", project, level),
		"xaxis":         map[string]any{"title": map[string]any{"text": "Month"}},
		"yaxis":         map[string]any{"title": map[string]any{"text": "Number of Editors"}, "rangemode": "tozero"},
		"hovermode":     "x unified",
		"plot_bgcolor":  "white",
		"paper_bgcolor": "white",
		"font":          map[string]any{"family": "Arial"},
		"margin":        map[string]any{"t": 50, "l": 50, "r": 50, "b": 50},
		"showlegend":    true,
		"legend":        map[string]any{"yanchor": "top", "y": 0.99, "xanchor": "left", "x": 0.01},
	}
}

// IndexView is the template data of the landing page.
type IndexView struct {
	page
	Records    int
	Months     []string
	FirstMonth string
	LastMonth  string
	Projects   []string
	Top        []usecase.CountryAggregate
}

// NewIndexView summarizes what the dataset holds.
func NewIndexView(result *usecase.Result) *IndexView {
	view := &IndexView{
		page:     newPage("Geoeditors", "index", result),
		Records:  len(result.Records),
		Months:   result.Available.Months,
		Projects: result.Available.Projects,
	}
	if n := len(view.Months); n > 0 {
		view.FirstMonth, view.LastMonth = view.Months[0], view.Months[n-1]
	}
	top := make([]usecase.CountryAggregate, 0, len(result.ByCountry))
	for _, c := range result.ByCountry {
		if published(c) {
			top = append(top, c)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Latest > top[j].Latest })
	if len(top) > 10 {
		top = top[:10]
	}
	view.Top = top
	if view.Records == 0 {
		view.Notice = "No data has been ingested yet. Run `geoeditors update` to fetch it."
	}
	return view
}
