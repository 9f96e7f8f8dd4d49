package sizeoracle

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

// CSV columns of cloc --csv: files,language,blank,comment,code.
const (
	colLanguage = 1
	colBlank    = 2
	colComment  = 3
	colCode     = 4
	minColumns  = 5
	sumLanguage = "SUM"
)

// ParseCSV extracts the aggregate metric from cloc CSV output. The SUM row
// wins when present, otherwise the last data row is used. Non-numeric counts
// coerce to zero. It reports false when no data row exists.
func ParseCSV(out []byte) (SizeMetric, bool) {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		last  []string
		found bool
	)

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			continue
		}

		if !isDataRow(record) {
			continue
		}

		last = record
		found = true

		if strings.EqualFold(strings.TrimSpace(record[colLanguage]), sumLanguage) {
			break
		}
	}

	if !found {
		return SizeMetric{}, false
	}

	return SizeMetric{
		Code:    count(last[colCode]),
		Comment: count(last[colComment]),
		Blank:   count(last[colBlank]),
	}, true
}

func isDataRow(record []string) bool {
	if len(record) < minColumns {
		return false
	}

	return !strings.EqualFold(strings.TrimSpace(record[0]), "files")
}

// count coerces a CSV cell to a non-negative integer, zero when not all digits.
func count(cell string) int {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0
	}

	for _, c := range cell {
		if c < '0' || c > '9' {
			return 0
		}
	}

	n, err := strconv.Atoi(cell)
	if err != nil {
		return 0
	}

	return n
}
