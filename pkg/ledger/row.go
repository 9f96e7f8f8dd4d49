package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
)

const (
	separator   = ","
	dateColumn  = "date"
	totalColumn = "total_code"
	perSubtree  = 3
)

// Row is the measurement of one commit day. Metrics follow the declared
// subtree order.
type Row struct {
	Day       history.Day
	Metrics   []sizeoracle.SizeMetric
	TotalCode int
}

// NewRow builds a row whose TotalCode is the sum of the subtree code counts.
func NewRow(day history.Day, metrics []sizeoracle.SizeMetric) Row {
	return Row{Day: day, Metrics: metrics, TotalCode: TotalCode(metrics)}
}

// TotalCode sums the code counts of metrics.
func TotalCode(metrics []sizeoracle.SizeMetric) int {
	total := 0
	for _, m := range metrics {
		total += m.Code
	}

	return total
}

// Header returns the CSV header line (without newline) for the subtree names.
func Header(names []string) string {
	cols := make([]string, 0, len(names)*perSubtree+2)
	cols = append(cols, dateColumn)

	for _, name := range names {
		cols = append(cols, name+"_code", name+"_comment", name+"_blank")
	}

	cols = append(cols, totalColumn)

	return strings.Join(cols, separator)
}

// ParseHeader recovers the subtree names from a header line.
func ParseHeader(line string) ([]string, error) {
	cols := strings.Split(line, separator)
	if len(cols) < 2 || cols[0] != dateColumn || cols[len(cols)-1] != totalColumn ||
		(len(cols)-2)%perSubtree != 0 {
		return nil, fmt.Errorf("%w: header %q", ErrCorrupt, line)
	}

	names := make([]string, 0, (len(cols)-2)/perSubtree)

	for i := 1; i < len(cols)-1; i += perSubtree {
		name, ok := strings.CutSuffix(cols[i], "_code")
		if !ok || cols[i+1] != name+"_comment" || cols[i+2] != name+"_blank" {
			return nil, fmt.Errorf("%w: header %q", ErrCorrupt, line)
		}

		names = append(names, name)
	}

	return names, nil
}

// encode renders the row as one newline-terminated CSV line.
func (r Row) encode() []byte {
	buf := make([]byte, 0, 16+len(r.Metrics)*24)
	buf = append(buf, r.Day.String()...)

	for _, m := range r.Metrics {
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, int64(m.Code), 10)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, int64(m.Comment), 10)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, int64(m.Blank), 10)
	}

	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(r.TotalCode), 10)

	return append(buf, '\n')
}

// parseRow decodes one line (without newline) holding n subtrees.
func parseRow(line string, n int) (Row, error) {
	fields := strings.Split(line, separator)
	if len(fields) != n*perSubtree+2 {
		return Row{}, fmt.Errorf("%w: %d fields in %q, want %d", ErrCorrupt, len(fields), line, n*perSubtree+2)
	}

	day, err := history.ParseDay(fields[0])
	if err != nil {
		return Row{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	ints := make([]int, len(fields)-1)

	for i, f := range fields[1:] {
		v, convErr := strconv.Atoi(f)
		if convErr != nil || v < 0 {
			return Row{}, fmt.Errorf("%w: field %q in %q", ErrCorrupt, f, line)
		}

		ints[i] = v
	}

	metrics := make([]sizeoracle.SizeMetric, n)
	for i := range metrics {
		metrics[i] = sizeoracle.SizeMetric{
			Code:    ints[i*perSubtree],
			Comment: ints[i*perSubtree+1],
			Blank:   ints[i*perSubtree+2],
		}
	}

	return Row{Day: day, Metrics: metrics, TotalCode: ints[len(ints)-1]}, nil
}
