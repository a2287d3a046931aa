// Package devdata generates fake permit records for the SQLite development
// store and for tests.
package devdata

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/stolasapp/permits/internal/permits"
	"github.com/stolasapp/permits/internal/storage"
)

// TableName is the development table behind the V_RECORD view.
const TableName = "RECORD"

// Generation constants.
const (
	nullProbability = 0.15
	maxAgeDays      = 3 * 365
	inReviewWeight  = 0.3
)

var statuses = []string{
	"Received", "Pending", "Issued", "Closed", "Withdrawn", "Expired", "Void",
}

var modules = []string{"Building", "Planning", "Enforcement", "Licenses", "Fire"}

// Row is one storage row keyed by storage column name (e.g. "ADDR_FULL_LINE#").
// Columns absent from the map are stored as NULL.
type Row map[string]any

// Execer is the subset of [sql.DB] and [sql.Tx] used for inserts.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Seed returns the seed from the PERMITS_DEV_SEED environment variable, or a
// random value if not set.
func Seed() uint64 {
	if env := os.Getenv("PERMITS_DEV_SEED"); env != "" {
		if seed, err := strconv.ParseUint(env, 10, 64); err == nil {
			return seed
		}
	}
	return rand.Uint64() //nolint:gosec // intentionally weak random for test data
}

// Generator produces plausible storage rows covering every column of the full
// field set.
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
}

// NewGenerator creates a deterministic generator for seed. Open dates are
// spread over the years before now.
func NewGenerator(seed uint64, now time.Time) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: now.UTC().Truncate(time.Second)}
}

// Row generates one complete row. Required fields are always populated;
// optional fields are occasionally NULL.
func (g *Generator) Row() Row {
	f := g.faker
	opened := g.now.Add(-time.Duration(f.IntRange(0, maxAgeDays*24)) * time.Hour)
	status := f.RandomString(statuses)
	if f.Float64() < inReviewWeight {
		status = permits.StatusInReview
	}
	module := f.RandomString(modules)
	recordType := module + "/" + f.BuzzWord()

	row := Row{
		"AGENCY_ID":            strings.ToUpper(f.LetterN(4)),
		"RECORD_ID":            fmt.Sprintf("%s-%d-%05d", strings.ToUpper(module[:3]), opened.Year(), f.IntRange(1, 99999)),
		"RECORD_MODULE":        module,
		"RECORD_NAME":          f.Company(),
		"RECORD_OPEN_DATE":     opened,
		"RECORD_STATUS":        status,
		"RECORD_STATUS_DATE":   g.after(opened),
		"RECORD_TYPE":          recordType,
		"UPDATED_BY":           g.userID(),
		"ACA_INITIATED":        f.RandomString([]string{"Y", "N"}),
		"ADDR_FULL_LINE#":      f.Street() + ", " + f.City(),
		"ADDR_FULL_LINE1#":     f.Street(),
		"ASSIGNED_USERID":      g.userID(),
		"BALANCE_DUE":          g.money(5000),
		"BUILDING_COUNT":       int64(f.IntRange(0, 12)),
		"CLOSED_USERID":        g.userID(),
		"COMPLETED_USERID":     g.userID(),
		"CONST_TYPE_CODE":      strconv.Itoa(f.IntRange(1, 5)) + f.RandomString([]string{"A", "B"}),
		"DATE_ASSIGNED":        g.after(opened),
		"DATE_CLOSED":          g.after(opened),
		"DATE_COMPLETED":       g.after(opened),
		"DATE_OPENED":          opened,
		"DATE_OPENED_ORIGINAL": opened,
		"DATE_STATUS":          g.after(opened),
		"DATE_TRACK_START":     opened,
		"DESCRIPTION":          f.Sentence(12),
		"HOUSING_UNITS":        int64(f.IntRange(0, 200)),
		"IN_POSSESSION_HRS":    g.money(400),
		"INSPECTOR_USERID":     g.userID(),
		"JOB_VALUE":            g.money(2_000_000),
		"JOB_VALUE_CALCULATED": g.money(2_000_000),
		"JOB_VALUE_CONTRACTOR": g.money(2_000_000),
		"OFFICER_USERID":       g.userID(),
		"OPENED_USERID":        g.userID(),
		"PARENT_RECORD_ID#":    f.UUID(),
		"PERCENT_COMPLETE":     float64(f.IntRange(0, 100)),
		"PRIORITY":             f.RandomString([]string{"Low", "Medium", "High"}),
		"PUBLIC_OWNED":         f.RandomString([]string{"Y", "N"}),
		"RECORD_AGE":           int64(g.now.Sub(opened) / (24 * time.Hour)),
		"RECORD_OPEN_HRS":      g.now.Sub(opened).Hours(),
		"RECORD_TYPE_4LEVEL#":  recordType + "/" + f.BuzzWord() + "/NA",
		"RECORD_TYPE_CATEGORY": f.BuzzWord(),
		"RECORD_TYPE_GROUP":    module,
		"RECORD_TYPE_SUBTYPE":  f.BuzzWord(),
		"RECORD_TYPE_TYPE":     f.BuzzWord(),
		"REPORTED_CHANNEL":     f.RandomString([]string{"Online", "Counter", "Phone", "Email"}),
		"SHORT_NOTES":          f.Sentence(5),
		"STATUS":               f.RandomString([]string{"Active", "Inactive"}),
		"TOTAL_INVOICED":       g.money(10000),
		"TOTAL_PAID":           g.money(10000),
		"TRUST_ACCOUNT_BAL":    g.money(10000),
		"TRUST_ACCOUNT_DESC":   f.Sentence(3),
		"TRUST_ACCOUNT_ID_PRI": "TA-" + strconv.Itoa(f.IntRange(1000, 9999)),
		"TRUST_ACCOUNT_STATUS": f.RandomString([]string{"Active", "Closed"}),
		"TEMPLATE_ID":          strconv.Itoa(f.IntRange(1, 40)),
		"T_ID1":                f.LetterN(5),
		"T_ID2":                f.LetterN(5),
		"T_ID3":                f.LetterN(5),
		"STREET_NBR_ALPHA#":    strconv.Itoa(f.IntRange(1, 9999)) + f.RandomString([]string{"", "A", "B"}),
	}

	for _, field := range permits.Full.Fields() {
		if field.Optional && !narrowField(field.Column) && f.Float64() < nullProbability {
			delete(row, field.Column)
		}
	}
	return row
}

// narrowField reports whether column backs the narrow shape, where every
// field is required.
func narrowField(column string) bool {
	_, ok := permits.Narrow.Lookup(column)
	return ok
}

func (g *Generator) userID() string {
	return strings.ToUpper(g.faker.Username())
}

func (g *Generator) money(upper float64) float64 {
	return float64(int64(g.faker.Float64Range(0, upper)*100)) / 100 //nolint:mnd // cents
}

func (g *Generator) after(t time.Time) time.Time {
	span := g.now.Sub(t)
	if span <= 0 {
		return t
	}
	return t.Add(time.Duration(g.faker.Float64() * float64(span))).Truncate(time.Second)
}

// Insert writes rows into the development table. Every column of the full
// field set is listed; columns missing from a row are stored as NULL.
func Insert(ctx context.Context, exec Execer, dialect storage.Dialect, rows ...Row) error {
	fields := permits.Full.Fields()
	columns := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = dialect.Quote(field.Column)
		marks[i] = dialect.Placeholder(i + 1)
	}
	query := "INSERT INTO " + dialect.Quote(TableName) +
		" (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	args := make([]any, len(fields))
	for n, row := range rows {
		for i, field := range fields {
			args[i] = row[field.Column]
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", n, err)
		}
	}
	return nil
}

// Populate generates count rows and inserts them in a single transaction.
func Populate(ctx context.Context, handle *sql.DB, dialect storage.Dialect, gen *Generator, count int) error {
	rows := make([]Row, count)
	for i := range rows {
		rows[i] = gen.Row()
	}

	tx, err := handle.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	if err = Insert(ctx, tx, dialect, rows...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return nil
}

// Count returns the number of rows in the development table.
func Count(ctx context.Context, handle *sql.DB, dialect storage.Dialect) (int, error) {
	var n int
	err := handle.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+dialect.Quote(TableName)).Scan(&n)
	return n, err
}
