package permits

import (
	"strings"

	"github.com/stolasapp/permits/internal/storage"
)

// Statement is a compiled record query. The text is fixed per profile and
// dialect; only the bound arguments vary between requests.
type Statement struct {
	Text string
	// argument order as it appears in Text
	params []param
}

type param uint8

const (
	paramLimit param = iota + 1
	paramPredicate
)

// Args returns the bind arguments for a request bounded to limit rows.
func (s Statement) Args(p Profile, limit int) []any {
	args := make([]any, len(s.params))
	for i, prm := range s.params {
		switch prm {
		case paramLimit:
			args[i] = int64(limit)
		case paramPredicate:
			args[i] = p.Predicate.Value
		}
	}
	return args
}

// Compile renders the profile as a single SELECT in the given dialect:
//
//	SELECT [TOP (n)] <column> AS <name>, ... FROM V_RECORD
//	[WHERE <column> = ?] ORDER BY RECORD_OPEN_DATE DESC, RECORD_ID ASC [LIMIT n]
func (p Profile) Compile(dialect storage.Dialect) Statement {
	var (
		sb   strings.Builder
		stmt Statement
	)
	bind := func(prm param) string {
		stmt.params = append(stmt.params, prm)
		return dialect.Placeholder(len(stmt.params))
	}

	sb.WriteString("SELECT ")
	if dialect.UsesTop() {
		sb.WriteString("TOP (")
		sb.WriteString(bind(paramLimit))
		sb.WriteString(") ")
	}
	for i, field := range p.Fields.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(dialect.Quote(field.Column))
		sb.WriteString(" AS ")
		sb.WriteString(dialect.Quote(field.Name))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(dialect.Quote(ViewName))

	if p.Predicate != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(dialect.Quote(p.Predicate.Column))
		sb.WriteString(" = ")
		sb.WriteString(bind(paramPredicate))
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(dialect.Quote(orderColumn))
	sb.WriteString(" DESC, ")
	sb.WriteString(dialect.Quote(tieBreakColumn))
	sb.WriteString(" ASC")

	if !dialect.UsesTop() {
		sb.WriteString(" LIMIT ")
		sb.WriteString(bind(paramLimit))
	}

	stmt.Text = sb.String()
	return stmt
}
