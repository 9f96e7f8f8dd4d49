package ledger

import (
	"fmt"

	"github.com/spf13/afero"
)

// Table is a ledger read without prior knowledge of its subtrees.
type Table struct {
	Names []string
	Rows  []Row
}

// Latest returns the last row and false when the table has no rows.
func (t Table) Latest() (Row, bool) {
	if len(t.Rows) == 0 {
		return Row{}, false
	}

	return t.Rows[len(t.Rows)-1], true
}

// Load reads the ledger at path, taking the subtree names from its header.
func Load(fs afero.Fs, path string) (Table, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Table{}, fmt.Errorf("read ledger: %w", err)
	}

	complete, _ := splitTail(data)

	lines := completeLines(complete)
	if len(lines) == 0 {
		return Table{}, fmt.Errorf("%w: %s has no header", ErrCorrupt, path)
	}

	names, err := ParseHeader(lines[0])
	if err != nil {
		return Table{}, err
	}

	rows, err := parseRows(lines[1:], len(names))
	if err != nil {
		return Table{}, err
	}

	return Table{Names: names, Rows: rows}, nil
}
