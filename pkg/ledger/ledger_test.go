package ledger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
)

const ledgerPath = "/data/loc_history.csv"

var names = []string{"frontend", "backend"}

const header = "date,frontend_code,frontend_comment,frontend_blank," +
	"backend_code,backend_comment,backend_blank,total_code"

func row(day string, fc, bc int) ledger.Row {
	return ledger.NewRow(history.MustParseDay(day), []sizeoracle.SizeMetric{
		{Code: fc, Comment: 1, Blank: 2},
		{Code: bc, Comment: 3, Blank: 4},
	})
}

func newLedger(t *testing.T) (*ledger.Ledger, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	l := ledger.New(fs, ledgerPath, names)
	require.NoError(t, l.Initialize(false))

	return l, fs
}

func readFile(t *testing.T, fs afero.Fs) string {
	t.Helper()

	data, err := afero.ReadFile(fs, ledgerPath)
	require.NoError(t, err)

	return string(data)
}

func TestHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, header, ledger.Header(names))

	parsed, err := ledger.ParseHeader(header)
	require.NoError(t, err)
	assert.Equal(t, names, parsed)

	_, err = ledger.ParseHeader("date,x_code,y_comment,x_blank,total_code")
	require.ErrorIs(t, err, ledger.ErrCorrupt)
}

func TestInitializeCreatesHeaderOnly(t *testing.T) {
	t.Parallel()

	l, fs := newLedger(t)

	assert.Equal(t, header+"\n", readFile(t, fs))

	_, ok, err := l.LastCollectedDay()
	require.NoError(t, err)
	assert.False(t, ok)

	leftovers, err := afero.Glob(fs, "/data/*.tmp")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLastCollectedDayMissingFile(t *testing.T) {
	t.Parallel()

	l := ledger.New(afero.NewMemMapFs(), ledgerPath, names)

	_, ok, err := l.LastCollectedDay()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendAndRows(t *testing.T) {
	t.Parallel()

	l, fs := newLedger(t)

	require.NoError(t, l.Append(row("2024-01-01", 100, 0)))
	require.NoError(t, l.Append(row("2024-01-02", 100, 50)))

	assert.Equal(t, header+"\n"+
		"2024-01-01,100,1,2,0,3,4,100\n"+
		"2024-01-02,100,1,2,50,3,4,150\n", readFile(t, fs))

	last, ok, err := l.LastCollectedDay()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, history.MustParseDay("2024-01-02"), last)

	rows, err := l.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 150, rows[1].TotalCode)
	assert.Equal(t, row("2024-01-02", 100, 50), rows[1])
}

func TestAppendRejectsNonMonotonic(t *testing.T) {
	t.Parallel()

	l, fs := newLedger(t)

	require.NoError(t, l.Append(row("2024-01-02", 1, 1)))
	before := readFile(t, fs)

	require.ErrorIs(t, l.Append(row("2024-01-02", 1, 1)), ledger.ErrNonMonotonic)
	require.ErrorIs(t, l.Append(row("2024-01-01", 1, 1)), ledger.ErrNonMonotonic)
	assert.Equal(t, before, readFile(t, fs))
}

func TestAppendRejectsBadShape(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)

	short := ledger.NewRow(history.MustParseDay("2024-01-01"), []sizeoracle.SizeMetric{{Code: 1}})
	require.ErrorIs(t, l.Append(short), ledger.ErrRowShape)

	wrongTotal := row("2024-01-01", 1, 1)
	wrongTotal.TotalCode = 99
	require.ErrorIs(t, l.Append(wrongTotal), ledger.ErrRowShape)
}

func TestAppendBeforeInitialize(t *testing.T) {
	t.Parallel()

	l := ledger.New(afero.NewMemMapFs(), ledgerPath, names)
	require.ErrorIs(t, l.Append(row("2024-01-01", 1, 1)), ledger.ErrNotInitialized)
}

func TestInitializeKeepsExistingRows(t *testing.T) {
	t.Parallel()

	l, fs := newLedger(t)
	require.NoError(t, l.Append(row("2024-01-01", 10, 0)))

	reopened := ledger.New(fs, ledgerPath, names)
	require.NoError(t, reopened.Initialize(false))

	require.ErrorIs(t, reopened.Append(row("2024-01-01", 10, 0)), ledger.ErrNonMonotonic)
	require.NoError(t, reopened.Append(row("2024-01-05", 12, 0)))

	rows, err := reopened.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInitializeForceFullTruncates(t *testing.T) {
	t.Parallel()

	l, fs := newLedger(t)
	require.NoError(t, l.Append(row("2024-01-01", 10, 0)))

	require.NoError(t, l.Initialize(true))
	assert.Equal(t, header+"\n", readFile(t, fs))

	require.NoError(t, l.Append(row("2023-12-31", 1, 0)))
}

func TestInitializeHeaderMismatch(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ledgerPath, []byte("date,web_code,web_comment,web_blank,total_code\n"), 0o644))

	l := ledger.New(fs, ledgerPath, names)
	require.ErrorIs(t, l.Initialize(false), ledger.ErrHeaderMismatch)

	require.NoError(t, l.Initialize(true))
	assert.Equal(t, header+"\n", readFile(t, fs))
}

func TestTornTailIsInvisibleAndRepaired(t *testing.T) {
	t.Parallel()

	l, fs := newLedger(t)
	require.NoError(t, l.Append(row("2024-01-01", 10, 0)))
	require.NoError(t, l.Append(row("2024-01-02", 20, 0)))

	intact := readFile(t, fs)

	f, err := fs.OpenFile(ledgerPath, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2024-01-03,30,1,")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := ledger.New(fs, ledgerPath, names)

	last, ok, err := reopened.LastCollectedDay()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, history.MustParseDay("2024-01-02"), last)

	rows, err := reopened.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, reopened.Initialize(false))
	assert.Equal(t, intact, readFile(t, fs))

	require.NoError(t, reopened.Append(row("2024-01-03", 30, 0)))

	rows, err = reopened.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 30, rows[2].TotalCode)
}

func TestTornHeaderIsRewritten(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ledgerPath, []byte("date,fronte"), 0o644))

	l := ledger.New(fs, ledgerPath, names)
	require.NoError(t, l.Initialize(false))
	assert.Equal(t, header+"\n", readFile(t, fs))
}

func TestCRLFLedgerResumes(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	existing := header + "\r\n2024-01-01,10,1,2,0,3,4,10\r\n"
	require.NoError(t, afero.WriteFile(fs, ledgerPath, []byte(existing), 0o644))

	l := ledger.New(fs, ledgerPath, names)

	last, ok, err := l.LastCollectedDay()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, history.MustParseDay("2024-01-01"), last)

	require.NoError(t, l.Initialize(false))
	require.ErrorIs(t, l.Append(row("2024-01-01", 10, 0)), ledger.ErrNonMonotonic)
	require.NoError(t, l.Append(row("2024-01-02", 12, 0)))
	assert.Equal(t, existing+"2024-01-02,12,1,2,0,3,4,12\n", readFile(t, fs))

	table, err := ledger.Load(fs, ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, names, table.Names)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 10, table.Rows[0].TotalCode)
	assert.Equal(t, 12, table.Rows[1].TotalCode)
}

func TestRowsCorrupt(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ledgerPath, []byte(header+"\n2024-01-01,1,2\n"), 0o644))

	l := ledger.New(fs, ledgerPath, names)

	_, err := l.Rows()
	require.ErrorIs(t, err, ledger.ErrCorrupt)
	require.ErrorIs(t, l.Initialize(false), ledger.ErrCorrupt)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	l, fs := newLedger(t)
	require.NoError(t, l.Append(row("2024-01-01", 10, 5)))

	table, err := ledger.Load(fs, ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, names, table.Names)

	latest, ok := table.Latest()
	require.True(t, ok)
	assert.Equal(t, 15, latest.TotalCode)
}

func TestOnDisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "loc.csv")
	l := ledger.New(afero.NewOsFs(), path, names)

	require.NoError(t, l.Initialize(false))
	require.NoError(t, l.Append(row("2024-01-01", 3, 4)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, header+"\n2024-01-01,3,1,2,4,3,4,7\n", string(data))
}
