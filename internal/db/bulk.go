package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// maxParams is the PostgreSQL limit on bind parameters per statement.
const maxParams = 65535

// Execer runs a statement. Pools and transactions both satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Identifier splits an optionally schema-qualified name such as
// "public.morpho_values".
func Identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

// CopyFrom bulk-inserts rows with the COPY protocol. dst is a pool or an
// open transaction. A short count is an error.
func CopyFrom(ctx context.Context, dst Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := dst.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: copy into %s: wrote %d of %d rows", table, n, len(rows))
	}
	return n, nil
}

// Upsert is an INSERT ... ON CONFLICT DO UPDATE over a fixed column list.
type Upsert struct {
	Table   string   // optionally schema-qualified
	Columns []string // inserted columns, in row order
	Key     []string // columns of the unique constraint
	Update  []string // columns overwritten on conflict; nil means every non-key column
}

// Exec writes rows using multi-row VALUES statements, as few as the
// parameter limit allows, and returns the number of affected rows.
func (u Upsert) Exec(ctx context.Context, dst Execer, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := u.validate(); err != nil {
		return 0, err
	}

	per := maxParams / len(u.Columns)
	var total int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		chunk := rows[start:end]

		args := make([]any, 0, len(chunk)*len(u.Columns))
		for i, r := range chunk {
			if len(r) != len(u.Columns) {
				return total, eris.Errorf("db: upsert %s: row %d has %d values, want %d", u.Table, start+i, len(r), len(u.Columns))
			}
			args = append(args, r...)
		}

		tag, err := dst.Exec(ctx, u.statement(len(chunk)), args...)
		if err != nil {
			return total, eris.Wrapf(err, "db: upsert %s", u.Table)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (u Upsert) validate() error {
	if u.Table == "" {
		return eris.New("db: upsert: no table")
	}
	if len(u.Columns) == 0 {
		return eris.New("db: upsert: no columns")
	}
	if len(u.Key) == 0 {
		return eris.New("db: upsert: no conflict key")
	}
	cols := make(map[string]bool, len(u.Columns))
	for _, c := range u.Columns {
		cols[c] = true
	}
	for _, k := range u.Key {
		if !cols[k] {
			return eris.Errorf("db: upsert: key column %q is not inserted", k)
		}
	}
	return nil
}

func (u Upsert) updateColumns() []string {
	if u.Update != nil {
		return u.Update
	}
	key := make(map[string]bool, len(u.Key))
	for _, k := range u.Key {
		key[k] = true
	}
	var out []string
	for _, c := range u.Columns {
		if !key[c] {
			out = append(out, c)
		}
	}
	return out
}

// statement builds the upsert for n rows with $1..$n*len(Columns)
// placeholders.
func (u Upsert) statement(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", Identifier(u.Table).Sanitize(), quoteAll(u.Columns))

	p := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range u.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteByte(')')
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) ", quoteAll(u.Key))
	update := u.updateColumns()
	if len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, c := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{c}.Sanitize()
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", q, q)
	}
	return b.String()
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
