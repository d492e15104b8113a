// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MonthLayout is the time layout of a dataset month ("YYYY-MM").
const MonthLayout = "2006-01"

// ActivityLevel is the bucket of edits per editor per month used by the dataset.
type ActivityLevel string

const (
	ActivityLow    ActivityLevel = "1 to 4"
	ActivityMedium ActivityLevel = "5 to 99"
	ActivityHigh   ActivityLevel = "100 or more"
)

// ActivityLevels lists every label the dataset publishes, lowest first.
var ActivityLevels = []ActivityLevel{ActivityLow, ActivityMedium, ActivityHigh}

// ParseActivityLevel returns the level with exactly this label.
func ParseActivityLevel(s string) (ActivityLevel, bool) {
	for _, l := range ActivityLevels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// ParseMonth parses a "YYYY-MM" month.
func ParseMonth(s string) (time.Time, error) {
	return time.Parse(MonthLayout, strings.TrimSpace(s))
}

// ValidMonth reports whether s is a well-formed "YYYY-MM" month.
func ValidMonth(s string) bool {
	_, err := ParseMonth(s)
	return err == nil && len(s) == len(MonthLayout)
}

// MonthRange returns every month from start to end inclusive.
func MonthRange(start, end time.Time) []string {
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	var months []string
	for !cur.After(last) {
		months = append(months, cur.Format(MonthLayout))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// RecordKey uniquely identifies an EditorRecord within a Dataset.
type RecordKey struct {
	CountryCode   string
	Project       string
	ActivityLevel ActivityLevel
	Month         string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.CountryCode, k.Project, k.ActivityLevel, k.Month)
}

// EditorRecord is the number of editors from one country active on one project
// at one activity level during one month.
type EditorRecord struct {
	CountryCode   string        `json:"country_code" db:"country_code"`
	CountryName   string        `json:"country_name" db:"country_name"`
	Project       string        `json:"project" db:"project"`
	WikiDB        string        `json:"wiki_db,omitempty" db:"wiki_db"`
	ActivityLevel ActivityLevel `json:"activity_level" db:"activity_level"`
	Month         string        `json:"month" db:"month"`
	Editors       int           `json:"editors" db:"editors"`
	Edits         int           `json:"edits,omitempty" db:"edits"`
	// Unpublished marks a padding row for a country whose counts Wikimedia withholds.
	Unpublished bool `json:"unpublished,omitempty" db:"unpublished"`
}

// Key returns the record's identity.
func (r EditorRecord) Key() RecordKey {
	return RecordKey{
		CountryCode:   r.CountryCode,
		Project:       r.Project,
		ActivityLevel: r.ActivityLevel,
		Month:         r.Month,
	}
}

// CountryRef is a (code, name) pair as it appears in the dataset.
type CountryRef struct {
	Code string `json:"country_code"`
	Name string `json:"country_name"`
}

// ErrDuplicateKey is returned when a dataset would hold two records with the same key.
var ErrDuplicateKey = errors.New("duplicate record key")

// Dataset is the ingested table in ingestion order. It is never mutated in place;
// updates build a new Dataset.
type Dataset struct {
	Records []EditorRecord
}

// NewDataset builds a dataset and checks that no two records share a key.
func NewDataset(records []EditorRecord) (*Dataset, error) {
	seen := make(map[RecordKey]struct{}, len(records))
	for _, r := range records {
		k := r.Key()
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, k)
		}
		seen[k] = struct{}{}
	}
	return &Dataset{Records: records}, nil
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Months returns the distinct months in ascending order.
func (d *Dataset) Months() []string {
	if d == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, r := range d.Records {
		set[r.Month] = struct{}{}
	}
	months := make([]string, 0, len(set))
	for m := range set {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

// HasMonth reports whether any record belongs to month.
func (d *Dataset) HasMonth(month string) bool {
	if d == nil {
		return false
	}
	for _, r := range d.Records {
		if r.Month == month {
			return true
		}
	}
	return false
}

// Countries returns the distinct countries sorted by name, then code.
func (d *Dataset) Countries() []CountryRef {
	if d == nil {
		return []CountryRef{}
	}
	set := make(map[CountryRef]struct{})
	for _, r := range d.Records {
		if r.CountryCode == "" || r.CountryName == "" {
			continue
		}
		set[CountryRef{Code: r.CountryCode, Name: r.CountryName}] = struct{}{}
	}
	out := make([]CountryRef, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// ReplaceMonths returns a new dataset where every record of the given months is
// dropped and the replacement records are appended. Re-ingesting a month therefore
// replaces it instead of appending to it.
func (d *Dataset) ReplaceMonths(months []string, replacement []EditorRecord) (*Dataset, error) {
	drop := make(map[string]struct{}, len(months))
	for _, m := range months {
		drop[m] = struct{}{}
	}
	var kept []EditorRecord
	if d != nil {
		kept = make([]EditorRecord, 0, len(d.Records)+len(replacement))
		for _, r := range d.Records {
			if _, ok := drop[r.Month]; !ok {
				kept = append(kept, r)
			}
		}
	}
	return NewDataset(append(kept, replacement...))
}
