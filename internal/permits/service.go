package permits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stolasapp/permits/internal/storage"
)

// Service fetches records for one [Profile] from a [storage.Pool].
type Service struct {
	pool    storage.Pool
	profile Profile
	stmt    Statement
	timeout time.Duration
	logger  *slog.Logger
}

// NewService compiles profile for the pool's dialect. A non-positive timeout
// disables the per-query bound.
func NewService(pool storage.Pool, profile Profile, timeout time.Duration, logger *slog.Logger) (*Service, error) {
	if profile.Fields == nil {
		return nil, errors.New("profile has no field set")
	}
	if profile.DefaultLimit < 1 || profile.DefaultLimit > profile.MaxLimit {
		return nil, fmt.Errorf("profile %s: default limit %d outside [1, %d]",
			profile.Name, profile.DefaultLimit, profile.MaxLimit)
	}
	return &Service{
		pool:    pool,
		profile: profile,
		stmt:    profile.Compile(pool.Dialect()),
		timeout: timeout,
		logger:  logger.With(slog.String("profile", profile.Name)),
	}, nil
}

// Profile returns the profile the service was built for.
func (s *Service) Profile() Profile { return s.profile }

// Statement returns the compiled query text.
func (s *Service) Statement() Statement { return s.stmt }

// FetchRecords returns up to limit records ordered by open date, newest
// first. A nil limit selects the profile default. Either every row is
// returned or an error is: a [LimitError] for an out of range limit, or a
// [QueryError] for storage and integrity failures.
func (s *Service) FetchRecords(ctx context.Context, limit *int) ([]Record, error) {
	n, err := s.profile.ResolveLimit(limit)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	conn, err := s.pool.Conn(ctx)
	if err != nil {
		return nil, classify(ctx, ConnectionFailure, err)
	}
	defer func() { _ = conn.Close() }()

	start := time.Now()
	rows, err := conn.QueryContext(ctx, s.stmt.Text, s.stmt.Args(s.profile, n)...)
	if err != nil {
		return nil, classify(ctx, ExecutionFailure, err)
	}
	defer func() { _ = rows.Close() }()

	records, err := s.decode(ctx, rows, n)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "records fetched",
		slog.Int("limit", n),
		slog.Int("count", len(records)),
		slog.Duration("latency", time.Since(start)),
	)
	return records, nil
}

// decode resolves result columns by name against the field catalog, then
// scans and checks every row. Column order in the result is not assumed.
func (s *Service) decode(ctx context.Context, rows *sql.Rows, limit int) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(ctx, ExecutionFailure, err)
	}
	plan, err := s.plan(columns)
	if err != nil {
		return nil, QueryError{Kind: ExecutionFailure, cause: err}
	}

	fields := s.profile.Fields
	cells := make([]cell, len(columns))
	dest := make([]any, len(columns))
	for i, pos := range plan {
		cells[i].kind = fields.fields[pos].Kind
		dest[i] = &cells[i]
	}

	records := make([]Record, 0, min(limit, DefaultLimit))
	for rows.Next() {
		if len(records) == limit {
			break
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, classify(ctx, ExecutionFailure, err)
		}
		values := make([]any, fields.Len())
		for i, pos := range plan {
			field := fields.fields[pos]
			if !cells[i].valid && !field.Optional {
				return nil, QueryError{
					Kind:  IntegrityViolation,
					Field: field.Name,
					cause: fmt.Errorf("required field %s is NULL in storage", field.Name),
				}
			}
			values[pos] = cells[i].value
		}
		records = append(records, Record{fields: fields, values: values})
	}
	if err = rows.Err(); err != nil {
		return nil, classify(ctx, ExecutionFailure, err)
	}
	return records, nil
}

// plan maps each result column to its field position. Unknown, duplicate or
// missing columns mean the query text and the catalog disagree.
func (s *Service) plan(columns []string) ([]int, error) {
	fields := s.profile.Fields
	if len(columns) != fields.Len() {
		return nil, fmt.Errorf("result has %d columns, field set %s has %d",
			len(columns), fields.Name(), fields.Len())
	}
	plan := make([]int, len(columns))
	seen := make([]bool, fields.Len())
	for i, column := range columns {
		pos, ok := fields.Lookup(column)
		if !ok {
			return nil, fmt.Errorf("unexpected result column %q", column)
		}
		if seen[pos] {
			return nil, fmt.Errorf("duplicate result column %q", column)
		}
		seen[pos] = true
		plan[i] = pos
	}
	return plan, nil
}
