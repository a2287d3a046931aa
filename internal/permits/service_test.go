package permits_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stolasapp/permits/internal/config"
	"github.com/stolasapp/permits/internal/devdata"
	"github.com/stolasapp/permits/internal/permits"
	"github.com/stolasapp/permits/internal/storage"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// countingPool records how often a connection is acquired.
type countingPool struct {
	*storage.DB
	conns atomic.Int32
}

func (p *countingPool) Conn(ctx context.Context) (*sql.Conn, error) {
	p.conns.Add(1)
	return p.DB.Conn(ctx)
}

// failingPool never hands out a connection.
type failingPool struct {
	err error
}

func (p failingPool) Conn(context.Context) (*sql.Conn, error) { return nil, p.err }
func (p failingPool) PingContext(context.Context) error      { return p.err }
func (failingPool) Dialect() storage.Dialect                 { return storage.SQLite }

func newStore(t *testing.T) *countingPool {
	t.Helper()
	store, err := storage.NewDB(t.Context(), config.Storage{
		Driver:       config.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "db.sqlite"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &countingPool{DB: store}
}

func newService(t *testing.T, pool storage.Pool, profile permits.Profile) *permits.Service {
	t.Helper()
	svc, err := permits.NewService(pool, profile, 5*time.Second, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return svc
}

func insert(t *testing.T, store *countingPool, rows ...devdata.Row) {
	t.Helper()
	require.NoError(t, devdata.Insert(t.Context(), store.Handle(), store.Dialect(), rows...))
}

func truncateRecords(t *testing.T, store *countingPool) {
	t.Helper()
	_, err := store.Handle().ExecContext(t.Context(), `DELETE FROM "RECORD"`)
	require.NoError(t, err)
}

// row returns a fully populated row opened at the given offset from baseTime.
func row(gen *devdata.Generator, id string, opened time.Time, status string) devdata.Row {
	r := gen.Row()
	r["RECORD_ID"] = id
	r["RECORD_OPEN_DATE"] = opened
	r["RECORD_STATUS"] = status
	return r
}

func openDate(t *testing.T, rec permits.Record) time.Time {
	t.Helper()
	v, ok := rec.Get("RECORD_OPEN_DATE")
	require.True(t, ok)
	if v == nil {
		return time.Time{}
	}
	tm, ok := v.(time.Time)
	require.True(t, ok, "RECORD_OPEN_DATE is %T", v)
	return tm
}

func TestFetchRecords_FullLimit(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	gen := devdata.NewGenerator(1, baseTime)
	for i := range 10 {
		insert(t, store, row(gen, gofakeit.UUID(), baseTime.Add(time.Duration(i)*time.Hour), "Issued"))
	}

	svc := newService(t, store, permits.FullProfile)
	limit := 5
	records, err := svc.FetchRecords(t.Context(), &limit)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for i, rec := range records {
		assert.Equal(t, permits.Full.Len(), rec.Fields().Len())
		want := baseTime.Add(time.Duration(9-i) * time.Hour)
		assert.True(t, want.Equal(openDate(t, rec)), "record %d: want %v, got %v", i, want, openDate(t, rec))
	}
}

func TestFetchRecords_DefaultLimit(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, devdata.Populate(t.Context(), store.Handle(), store.Dialect(),
		devdata.NewGenerator(2, baseTime), 130))

	records, err := newService(t, store, permits.FullProfile).FetchRecords(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, records, permits.DefaultLimit)
}

func TestFetchRecords_Ceiling(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, devdata.Populate(t.Context(), store.Handle(), store.Dialect(),
		devdata.NewGenerator(3, baseTime), 1005))
	svc := newService(t, store, permits.FullProfile)

	limit := permits.MaxLimit
	records, err := svc.FetchRecords(t.Context(), &limit)
	require.NoError(t, err)
	assert.Len(t, records, permits.MaxLimit)

	before := store.conns.Load()
	limit = permits.MaxLimit + 1
	records, err = svc.FetchRecords(t.Context(), &limit)
	var limitErr permits.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Nil(t, records)
	assert.Equal(t, before, store.conns.Load(), "rejected limits must not reach storage")
}

func TestFetchRecords_OrderingProperty(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	svc := newService(t, store, permits.FullProfile)
	faker := gofakeit.New(4)

	for iter := range 20 {
		truncateRecords(t, store)
		gen := devdata.NewGenerator(uint64(iter), baseTime)

		n := faker.IntRange(1, 60)
		rows := make([]devdata.Row, n)
		for i := range rows {
			// few distinct instants so ties are common
			opened := baseTime.Add(-time.Duration(faker.IntRange(0, 5)) * 24 * time.Hour)
			rows[i] = row(gen, faker.LetterN(8), opened, "Issued")
			if faker.Float64() < 0.1 {
				delete(rows[i], "RECORD_OPEN_DATE")
			}
		}
		insert(t, store, rows...)

		limit := permits.MaxLimit
		records, err := svc.FetchRecords(t.Context(), &limit)
		require.NoError(t, err)
		require.Len(t, records, n)

		for i := 1; i < len(records); i++ {
			prev, cur := openDate(t, records[i-1]), openDate(t, records[i])
			require.False(t, cur.After(prev), "iteration %d: record %d opened after its predecessor", iter, i)
			if prev.Equal(cur) {
				prevID, _ := records[i-1].Get("RECORD_ID")
				curID, _ := records[i].Get("RECORD_ID")
				require.LessOrEqual(t, prevID.(string), curID.(string), "iteration %d: tie-break by record id", iter)
			}
		}
	}
}

func TestFetchRecords_IntegrityViolationProperty(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	full := newService(t, store, permits.FullProfile)
	faker := gofakeit.New(5)

	var requiredFields []permits.Field
	for _, field := range permits.Full.Fields() {
		if !field.Optional {
			requiredFields = append(requiredFields, field)
		}
	}
	require.NotEmpty(t, requiredFields)

	for iter := range 40 {
		truncateRecords(t, store)
		gen := devdata.NewGenerator(uint64(100+iter), baseTime)

		good := faker.IntRange(0, 5)
		for i := range good {
			insert(t, store, row(gen, faker.LetterN(6), baseTime.Add(time.Duration(i)*time.Minute), "Issued"))
		}
		bad := row(gen, faker.LetterN(6), baseTime.Add(-time.Hour), "Issued")
		field := requiredFields[faker.IntN(len(requiredFields))]
		delete(bad, field.Column)
		insert(t, store, bad)

		records, err := full.FetchRecords(t.Context(), nil)
		var qerr permits.QueryError
		require.ErrorAs(t, err, &qerr, "iteration %d: NULL %s", iter, field.Name)
		assert.Equal(t, permits.IntegrityViolation, qerr.Kind)
		assert.Equal(t, field.Name, qerr.Field)
		assert.Nil(t, records, "no partial result set")
	}
}

func TestFetchRecords_OptionalNullsAreAbsent(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	r := row(devdata.NewGenerator(6, baseTime), "OPT-1", baseTime, "Issued")
	for _, field := range permits.Full.Fields() {
		if field.Optional && field.Name != "RECORD_ID" {
			delete(r, field.Column)
		}
	}
	insert(t, store, r)

	records, err := newService(t, store, permits.FullProfile).FetchRecords(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	for _, field := range permits.Full.Fields() {
		v, ok := records[0].Get(field.Name)
		require.True(t, ok)
		if field.Optional && field.Name != "RECORD_ID" {
			assert.Nil(t, v, field.Name)
		} else {
			assert.NotNil(t, v, field.Name)
		}
	}
}

func TestFetchRecords_HashedColumnsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	r := row(devdata.NewGenerator(7, baseTime), "HASH-1", baseTime, "Issued")
	want := map[string]string{
		"ADDR_FULL_LINE_HASH":     "12 Main St, Springfield",
		"ADDR_FULL_LINE1_HASH":    "12 Main St",
		"PARENT_RECORD_ID_HASH":   "BLD-2020-00017",
		"RECORD_TYPE_4LEVEL_HASH": "Building/Residential/New/NA",
		"STREET_NBR_ALPHA_HASH":   "12B",
	}
	r["ADDR_FULL_LINE#"] = want["ADDR_FULL_LINE_HASH"]
	r["ADDR_FULL_LINE1#"] = want["ADDR_FULL_LINE1_HASH"]
	r["PARENT_RECORD_ID#"] = want["PARENT_RECORD_ID_HASH"]
	r["RECORD_TYPE_4LEVEL#"] = want["RECORD_TYPE_4LEVEL_HASH"]
	r["STREET_NBR_ALPHA#"] = want["STREET_NBR_ALPHA_HASH"]
	insert(t, store, r)

	records, err := newService(t, store, permits.FullProfile).FetchRecords(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	data, err := json.Marshal(records[0])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	for name, value := range want {
		got, ok := records[0].Get(name)
		require.True(t, ok, name)
		assert.Equal(t, value, got, name)
		assert.Equal(t, value, decoded[name], name)
	}
	for key := range decoded {
		assert.NotContains(t, key, "#")
	}
}

func TestFetchRecords_NarrowProfile(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	gen := devdata.NewGenerator(8, baseTime)
	statuses := []string{"Issued", "Closed", "Pending", permits.StatusInReview}
	inReview := 0
	for i := range 500 {
		status := statuses[i%len(statuses)]
		if status == permits.StatusInReview {
			inReview++
		}
		insert(t, store, row(gen, gofakeit.UUID(), baseTime.Add(-time.Duration(i)*time.Minute), status))
	}
	require.Greater(t, inReview, permits.DefaultLimit)

	svc := newService(t, store, permits.NarrowProfile)
	limit := 5
	records, err := svc.FetchRecords(t.Context(), &limit)
	require.NoError(t, err)
	require.Len(t, records, permits.DefaultLimit, "narrow profile has a fixed bound")

	for _, rec := range records {
		assert.Equal(t, permits.Narrow.Len(), rec.Fields().Len())
		status, _ := rec.Get("RECORD_STATUS")
		assert.Equal(t, permits.StatusInReview, status)
		_, hasFullField := rec.Get("AGENCY_ID")
		assert.False(t, hasFullField)
	}
}

func TestFetchRecords_NarrowRequiresFields(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	r := row(devdata.NewGenerator(9, baseTime), "NR-1", baseTime, permits.StatusInReview)
	delete(r, "ASSIGNED_USERID")
	insert(t, store, r)

	_, err := newService(t, store, permits.NarrowProfile).FetchRecords(t.Context(), nil)
	var qerr permits.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, permits.IntegrityViolation, qerr.Kind)
	assert.Equal(t, "ASSIGNED_USERID", qerr.Field)
}

func TestFetchRecords_Empty(t *testing.T) {
	t.Parallel()

	records, err := newService(t, newStore(t), permits.FullProfile).FetchRecords(t.Context(), nil)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFetchRecords_SchemaDrift(t *testing.T) {
	t.Parallel()

	idField := permits.Field{Column: "RECORD_ID", Name: "RECORD_ID", Kind: permits.String, Optional: true}

	unknownColumn := permits.FullProfile
	unknownColumn.Fields = permits.MustFieldSet("unknown column",
		idField,
		permits.Field{Column: "NOT_A_COLUMN", Name: "NOT_A_COLUMN", Kind: permits.String, Optional: true},
	)

	misspelledHash := permits.FullProfile
	misspelledHash.Fields = permits.MustFieldSet("misspelled hash",
		idField,
		permits.Field{Column: "ADDR_FULL_LINE_TYPO#", Name: "ADDR_FULL_LINE_TYPO_HASH", Kind: permits.String, Optional: true},
	)

	driftedPredicate := permits.NarrowProfile
	driftedPredicate.Predicate = &permits.Predicate{Column: "RECORD_STATUS_TYPO", Value: permits.StatusInReview}

	tests := []struct {
		name    string
		profile permits.Profile
	}{
		{name: "unknown column", profile: unknownColumn},
		{name: "misspelled hashed column", profile: misspelledHash},
		{name: "drifted predicate column", profile: driftedPredicate},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			// a populated store, so a misread identifier would surface as data
			store := newStore(t)
			insert(t, store, row(devdata.NewGenerator(12, baseTime), "DRIFT-1", baseTime, permits.StatusInReview))

			records, err := newService(t, store, test.profile).FetchRecords(t.Context(), nil)
			var qerr permits.QueryError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, permits.ExecutionFailure, qerr.Kind)
			assert.Nil(t, records)
		})
	}
}

func TestFetchRecords_StorageFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want permits.ErrorKind
	}{
		{
			name: "unreachable",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			want: permits.ConnectionFailure,
		},
		{
			name: "login rejected",
			err:  errors.New("mssql: login error"),
			want: permits.ConnectionFailure,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: permits.Timeout,
		},
		{
			name: "caller canceled",
			err:  context.Canceled,
			want: permits.Canceled,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			svc := newService(t, failingPool{err: test.err}, permits.FullProfile)
			records, err := svc.FetchRecords(t.Context(), nil)
			var qerr permits.QueryError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, test.want, qerr.Kind)
			assert.ErrorIs(t, err, test.err)
			assert.Nil(t, records)
		})
	}
}

func TestFetchRecords_ConcurrentRequests(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, devdata.Populate(t.Context(), store.Handle(), store.Dialect(),
		devdata.NewGenerator(10, baseTime), 50))
	svc := newService(t, store, permits.FullProfile)

	const workers = 8
	errs := make(chan error, workers)
	for range workers {
		go func() {
			limit := 20
			records, err := svc.FetchRecords(t.Context(), &limit)
			if err == nil && len(records) != limit {
				err = errors.New("short result")
			}
			errs <- err
		}()
	}
	for range workers {
		require.NoError(t, <-errs)
	}
}

func TestNewService_InvalidProfile(t *testing.T) {
	t.Parallel()

	_, err := permits.NewService(failingPool{}, permits.Profile{Name: "empty"}, 0, slog.Default())
	require.Error(t, err)

	bad := permits.FullProfile
	bad.DefaultLimit = bad.MaxLimit + 1
	_, err = permits.NewService(failingPool{}, bad, 0, slog.Default())
	require.ErrorContains(t, err, "default limit")
}
