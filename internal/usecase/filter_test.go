package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/naka-gawa/geoeditors/internal/domain"
)

func TestFilter_Normalize(t *testing.T) {
	testCases := []struct {
		name   string
		input  Filter
		expect Filter
	}{
		{
			name:   "valid values are kept",
			input:  Filter{ActivityLevel: "100 or more", Project: " en.wikipedia ", From: "2024-01", To: "2024-03"},
			expect: Filter{ActivityLevel: "100 or more", Project: "en.wikipedia", From: "2024-01", To: "2024-03"},
		},
		{
			name:   "unknown level and malformed months are dropped",
			input:  Filter{ActivityLevel: "1-4", From: "2024-1", To: "yesterday"},
			expect: Filter{},
		},
		{
			name:   "reversed range is swapped",
			input:  Filter{From: "2024-05", To: "2023-11"},
			expect: Filter{From: "2023-11", To: "2024-05"},
		},
		{
			name:   "countries are split, trimmed, upper-cased and deduplicated",
			input:  Filter{Countries: []string{"us, de", "US", "", " fr "}},
			expect: Filter{Countries: []string{"US", "DE", "FR"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.input.Normalize())
		})
	}
}

func TestFilter_Match(t *testing.T) {
	r := domain.EditorRecord{CountryCode: "US", Project: "en.wikipedia", ActivityLevel: domain.ActivityLow, Month: "2024-02"}

	testCases := []struct {
		name   string
		filter Filter
		expect bool
	}{
		{name: "empty", filter: Filter{}, expect: true},
		{name: "level", filter: Filter{ActivityLevel: "1 to 4"}, expect: true},
		{name: "other level", filter: Filter{ActivityLevel: "5 to 99"}, expect: false},
		{name: "other project", filter: Filter{Project: "de.wikipedia"}, expect: false},
		{name: "before range", filter: Filter{From: "2024-03"}, expect: false},
		{name: "after range", filter: Filter{To: "2024-01"}, expect: false},
		{name: "inclusive range", filter: Filter{From: "2024-02", To: "2024-02"}, expect: true},
		{name: "country listed", filter: Filter{Countries: []string{"DE", "US"}}, expect: true},
		{name: "country not listed", filter: Filter{Countries: []string{"DE"}}, expect: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.filter.Normalize().Match(r))
		})
	}
}
