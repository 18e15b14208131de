package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/layover/internal/backend"
	"go.uber.org/zap"
)

// Tables the record store serves.
var Tables = []string{
	"users", "matches", "connections", "messages",
	"message_reactions", "notifications", "blocks", "reports",
}

// timeColumns get a store-assigned unix-ms value on insert when absent.
var timeColumns = []string{"created_at", "timestamp"}

var _ backend.RecordStore = (*Records)(nil)

// Records is a backend.RecordStore over the migrated SQLite schema. Every
// write is published as a change event once it has committed.
type Records struct {
	db     *DB
	pub    backend.ChangePublisher
	logger *zap.Logger

	columns map[string][]string

	mu   sync.Mutex // serializes writes and the clock
	last int64
}

// NewRecords loads the schema of every served table. pub may be nil.
func NewRecords(db *DB, pub backend.ChangePublisher, logger *zap.Logger) (*Records, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Records{db: db, pub: pub, logger: logger, columns: make(map[string][]string)}
	for _, table := range Tables {
		cols, err := tableColumns(db, table)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("table %s: not migrated", table)
		}
		r.columns[table] = cols
	}
	return r, nil
}

func tableColumns(db *DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Select returns the rows of table matching q.
func (r *Records) Select(ctx context.Context, table string, q backend.Query) ([]backend.Row, error) {
	rows, err := r.selectRows(ctx, table, q)
	if err != nil {
		return nil, err
	}
	return r.checkRead(ctx, table, q, rows)
}

// Insert writes rec, filling in the id and time columns when absent, and
// returns the stored row.
func (r *Records) Insert(ctx context.Context, table string, rec backend.Row) (backend.Row, error) {
	if err := r.checkTable(table); err != nil {
		return nil, err
	}
	rec = rec.Clone()
	if !rec.Has("id") {
		rec["id"] = uuid.NewString()
	}
	if err := r.checkInsert(ctx, table, rec); err != nil {
		return nil, err
	}

	r.mu.Lock()
	now := r.tick()
	for _, col := range timeColumns {
		if r.hasColumn(table, col) && !rec.Has(col) {
			rec[col] = now
		}
	}
	cols := make([]string, 0, len(rec))
	for col := range rec {
		if !r.hasColumn(table, col) {
			r.mu.Unlock()
			return nil, backend.Errorf(backend.CodeInvalid, "column %s.%s does not exist", table, col)
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = bind(rec[col])
	}
	stmt := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, quoteAll(cols), placeholders(len(cols)))
	_, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	stored, err := r.selectRows(ctx, table, backend.Eq("id", rec["id"]))
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, backend.Errorf(backend.CodeNotFound, "%s %v vanished after insert", table, rec["id"])
	}

	r.publish(backend.ChangeEvent{Type: backend.Insert, Table: table, New: stored[0]})
	return stored[0].Clone(), nil
}

// Update applies patch to every row matching q. Matching nothing is not an
// error.
func (r *Records) Update(ctx context.Context, table string, q backend.Query, patch backend.Row) error {
	if err := r.checkTable(table); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}
	cols := make([]string, 0, len(patch))
	for col := range patch {
		if !r.hasColumn(table, col) || col == "id" {
			return backend.Errorf(backend.CodeInvalid, "column %s.%s cannot be updated", table, col)
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)

	r.mu.Lock()
	before, err := r.selectRows(ctx, table, q)
	if err != nil || len(before) == 0 {
		r.mu.Unlock()
		return err
	}
	ids := idsOf(before)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(ids))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%q = ?", col)
		args = append(args, bind(patch[col]))
	}
	args = append(args, ids...)
	stmt := fmt.Sprintf("UPDATE %q SET %s WHERE \"id\" IN (%s)",
		table, strings.Join(sets, ", "), placeholders(len(ids)))
	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("update %s: %w", table, err)
	}
	after, err := r.selectRows(ctx, table, backend.Query{}.WhereIn("id", ids...))
	r.mu.Unlock()
	if err != nil {
		return err
	}

	old := make(map[string]backend.Row, len(before))
	for _, row := range before {
		old[row.String("id")] = row
	}
	for _, row := range after {
		r.publish(backend.ChangeEvent{Type: backend.Update, Table: table, New: row, Old: old[row.String("id")]})
	}
	return nil
}

// Delete removes every row matching q. Matching nothing is not an error.
func (r *Records) Delete(ctx context.Context, table string, q backend.Query) error {
	if err := r.checkTable(table); err != nil {
		return err
	}
	r.mu.Lock()
	before, err := r.selectRows(ctx, table, q)
	if err != nil || len(before) == 0 {
		r.mu.Unlock()
		return err
	}
	ids := idsOf(before)
	stmt := fmt.Sprintf("DELETE FROM %q WHERE \"id\" IN (%s)", table, placeholders(len(ids)))
	_, err = r.db.ExecContext(ctx, stmt, ids...)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	for _, row := range before {
		r.publish(backend.ChangeEvent{Type: backend.Delete, Table: table, Old: row})
	}
	return nil
}

func (r *Records) publish(evt backend.ChangeEvent) {
	if r.pub == nil {
		return
	}
	r.logger.Debug("record changed",
		zap.String("table", evt.Table),
		zap.String("type", string(evt.Type)),
		zap.String("id", evt.Record().String("id")))
	r.pub.PublishChange(evt)
}

// tick returns a strictly increasing unix-ms clock, so rows written in the
// same millisecond keep their insertion order. Caller holds r.mu.
func (r *Records) tick() int64 {
	now := time.Now().UnixMilli()
	if now <= r.last {
		now = r.last + 1
	}
	r.last = now
	return now
}

func (r *Records) checkTable(table string) error {
	if _, ok := r.columns[table]; !ok {
		return backend.Errorf(backend.CodeInvalid, "relation %s does not exist", table)
	}
	return nil
}

func (r *Records) hasColumn(table, col string) bool {
	return slices.Contains(r.columns[table], col)
}

func (r *Records) selectRows(ctx context.Context, table string, q backend.Query) ([]backend.Row, error) {
	if err := r.checkTable(table); err != nil {
		return nil, err
	}
	where, args, err := r.compile(table, q)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT * FROM %q%s", table, where)
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []backend.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(backend.Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// compile renders the WHERE, ORDER BY and LIMIT clauses of q.
func (r *Records) compile(table string, q backend.Query) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	check := func(col string) error {
		if !r.hasColumn(table, col) {
			return backend.Errorf(backend.CodeInvalid, "column %s.%s does not exist", table, col)
		}
		return nil
	}

	eqCols := make([]string, 0, len(q.Eq))
	for col := range q.Eq {
		eqCols = append(eqCols, col)
	}
	slices.Sort(eqCols)
	for _, col := range eqCols {
		if err := check(col); err != nil {
			return "", nil, err
		}
		if q.Eq[col] == nil {
			conds = append(conds, fmt.Sprintf("%q IS NULL", col))
			continue
		}
		conds = append(conds, fmt.Sprintf("%q = ?", col))
		args = append(args, bind(q.Eq[col]))
	}

	inCols := make([]string, 0, len(q.In))
	for col := range q.In {
		inCols = append(inCols, col)
	}
	slices.Sort(inCols)
	for _, col := range inCols {
		if err := check(col); err != nil {
			return "", nil, err
		}
		vals := q.In[col]
		if len(vals) == 0 {
			conds = append(conds, "0")
			continue
		}
		conds = append(conds, fmt.Sprintf("%q IN (%s)", col, placeholders(len(vals))))
		for _, v := range vals {
			args = append(args, bind(v))
		}
	}

	if len(q.Or) > 0 {
		alts := make([]string, len(q.Or))
		for i, c := range q.Or {
			if err := check(c.Column); err != nil {
				return "", nil, err
			}
			alts[i] = fmt.Sprintf("%q = ?", c.Column)
			args = append(args, bind(c.Value))
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}

	var b strings.Builder
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if len(q.Order) > 0 {
		keys := make([]string, len(q.Order))
		for i, o := range q.Order {
			if err := check(o.Column); err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			keys[i] = fmt.Sprintf("%q %s", o.Column, dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(keys, ", "))
	}
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, q.Offset)
	}
	return b.String(), args, nil
}

func bind(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.UnixMilli()
	}
	return v
}

func idsOf(rows []backend.Row) []any {
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row["id"]
	}
	return ids
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = fmt.Sprintf("%q", col)
	}
	return strings.Join(quoted, ", ")
}
