// Package tsv reads the published geoeditors monthly files and reads/writes the
// local flat-file table.
package tsv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/naka-gawa/geoeditors/internal/domain"
)

// MonthlyColumns is the column order of the published monthly files, which
// carry no header row.
var MonthlyColumns = []string{
	"wiki_db", "project", "country", "country_code", "activity_level",
	"count_eps", "sum_eps", "count_release_thresh", "editors", "edits", "month",
}

const (
	colWikiDB        = 0
	colProject       = 1
	colCountry       = 2
	colCountryCode   = 3
	colActivityLevel = 4
	colEditors       = 8
	colEdits         = 9
	colMonth         = 10
)

var (
	errMissing   = errors.New("required value is empty")
	errNegative  = errors.New("must not be negative")
	errDuplicate = errors.New("duplicate country/project/activity level")
	errNoRows    = errors.New("file has no rows")
)

// ParseMonthly parses one published monthly file. Every row must belong to
// month. Any malformed row, or a file without rows, fails the whole file with a
// *domain.ParseError.
func ParseMonthly(month string, data []byte) ([]domain.EditorRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records []domain.EditorRecord
	seen := make(map[domain.RecordKey]struct{})
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &domain.ParseError{Month: month, Cause: err}
		}
		line, _ := reader.FieldPos(0)
		rec, perr := parseMonthlyRow(month, row)
		if perr != nil {
			perr.Line = line
			return nil, perr
		}
		if _, dup := seen[rec.Key()]; dup {
			return nil, &domain.ParseError{Month: month, Line: line, Cause: errDuplicate}
		}
		seen[rec.Key()] = struct{}{}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, &domain.ParseError{Month: month, Cause: errNoRows}
	}
	return records, nil
}

func parseMonthlyRow(month string, row []string) (domain.EditorRecord, *domain.ParseError) {
	fail := func(col int, cause error) (domain.EditorRecord, *domain.ParseError) {
		return domain.EditorRecord{}, &domain.ParseError{Month: month, Column: MonthlyColumns[col], Cause: cause}
	}
	if len(row) < len(MonthlyColumns) {
		return domain.EditorRecord{}, &domain.ParseError{
			Month: month,
			Cause: fmt.Errorf("expected %d columns, got %d", len(MonthlyColumns), len(row)),
		}
	}
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}

	for _, col := range []int{colProject, colCountryCode, colActivityLevel, colEditors, colMonth} {
		if row[col] == "" {
			return fail(col, errMissing)
		}
	}
	level, ok := domain.ParseActivityLevel(row[colActivityLevel])
	if !ok {
		return fail(colActivityLevel, fmt.Errorf("unknown activity level %q", row[colActivityLevel]))
	}
	if row[colMonth] != month {
		return fail(colMonth, fmt.Errorf("row month %q does not match file month", row[colMonth]))
	}
	editors, err := parseCount(row[colEditors])
	if err != nil {
		return fail(colEditors, err)
	}
	edits := 0
	if row[colEdits] != "" {
		if edits, err = parseCount(row[colEdits]); err != nil {
			return fail(colEdits, err)
		}
	}

	name := row[colCountry]
	if name == "" {
		if c, ok := domain.LookupCountry(row[colCountryCode]); ok {
			name = c.Name
		}
	}
	return domain.EditorRecord{
		CountryCode:   strings.ToUpper(row[colCountryCode]),
		CountryName:   name,
		Project:       row[colProject],
		WikiDB:        row[colWikiDB],
		ActivityLevel: level,
		Month:         month,
		Editors:       editors,
		Edits:         edits,
	}, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

// TableColumns is the header of the local table file.
var TableColumns = []string{
	"country_code", "country_name", "project", "wiki_db", "activity_level",
	"month", "editors", "edits", "unpublished",
}

// WriteTable writes records with a header row.
func WriteTable(w io.Writer, records []domain.EditorRecord) error {
	writer := csv.NewWriter(w)
	writer.Comma = '\t'
	if err := writer.Write(TableColumns); err != nil {
		return err
	}
	for _, r := range records {
		err := writer.Write([]string{
			r.CountryCode,
			r.CountryName,
			r.Project,
			r.WikiDB,
			string(r.ActivityLevel),
			r.Month,
			strconv.Itoa(r.Editors),
			strconv.Itoa(r.Edits),
			strconv.FormatBool(r.Unpublished),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTable reads a file produced by WriteTable.
func ReadTable(r io.Reader) ([]domain.EditorRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = len(TableColumns)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read table header: %w", err)
	}
	if strings.Join(header, "\t") != strings.Join(TableColumns, "\t") {
		return nil, fmt.Errorf("unexpected table header %q", strings.Join(header, ","))
	}

	var records []domain.EditorRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read table: %w", err)
		}
		line, _ := reader.FieldPos(0)
		editors, err1 := strconv.Atoi(row[6])
		edits, err2 := strconv.Atoi(row[7])
		unpublished, err3 := strconv.ParseBool(row[8])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("table line %d: %w", line, err)
		}
		records = append(records, domain.EditorRecord{
			CountryCode:   row[0],
			CountryName:   row[1],
			Project:       row[2],
			WikiDB:        row[3],
			ActivityLevel: domain.ActivityLevel(row[4]),
			Month:         row[5],
			Editors:       editors,
			Edits:         edits,
			Unpublished:   unpublished,
		})
	}
	return records, nil
}
