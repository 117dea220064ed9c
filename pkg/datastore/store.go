// Package datastore offers table-oriented reads and writes over sqlx with
// equality and set-membership filters. Column lists come from `db` struct tags.
package datastore

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Observer receives the outcome of every statement, typically for metrics.
type Observer func(table, operation string, duration time.Duration, err error)

// Filter restricts affected rows. Build with Eq or In.
type Filter struct {
	column string
	value  interface{}
	set    bool
}

// Eq matches rows where column equals value; a nil value matches NULL.
func Eq(column string, value interface{}) Filter {
	return Filter{column: column, value: value}
}

// In matches rows where column is one of values. values must be a slice lib/pq can encode.
func In(column string, values interface{}) Filter {
	return Filter{column: column, value: values, set: true}
}

// Query describes a multi-row read.
type Query struct {
	Filters []Filter
	OrderBy []string
	Limit   int
}

// Store issues statements against a database handle or an open transaction.
type Store struct {
	db       *sqlx.DB
	q        sqlx.ExtContext
	observer Observer
}

// New wraps the database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// WithObserver returns a copy of the store reporting statement timings to fn.
func (s *Store) WithObserver(fn Observer) *Store {
	clone := *s
	clone.observer = fn
	return &clone
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("commit transaction: %w", commitErr)
		}
	}()
	return fn(&Store{q: tx, observer: s.observer})
}

// Select loads every matching row into dest, a pointer to a slice of structs.
func (s *Store) Select(ctx context.Context, dest interface{}, table string, q Query) (err error) {
	defer s.observe(table, "select", time.Now(), &err)
	cols, err := columnsOf(dest)
	if err != nil {
		return err
	}
	if err := checkIdentifiers(append([]string{table}, cols...)...); err != nil {
		return err
	}
	clause, args, err := whereClause(q.Filters, 1)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s", strings.Join(cols, ", "), table, clause)
	if len(q.OrderBy) > 0 {
		order, err := orderClause(q.OrderBy)
		if err != nil {
			return err
		}
		sb.WriteString(order)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	if err := sqlx.SelectContext(ctx, s.q, dest, sb.String(), args...); err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return nil
}

// Get loads exactly one row into dest. sql.ErrNoRows is returned wrapped when nothing matches.
func (s *Store) Get(ctx context.Context, dest interface{}, table string, filters ...Filter) (err error) {
	defer s.observe(table, "get", time.Now(), &err)
	cols, err := columnsOf(dest)
	if err != nil {
		return err
	}
	if err := checkIdentifiers(append([]string{table}, cols...)...); err != nil {
		return err
	}
	clause, args, err := whereClause(filters, 1)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1", strings.Join(cols, ", "), table, clause)
	if err := sqlx.GetContext(ctx, s.q, dest, query, args...); err != nil {
		return fmt.Errorf("get %s: %w", table, err)
	}
	return nil
}

// Insert writes a struct or a slice of structs. An empty slice is a no-op.
func (s *Store) Insert(ctx context.Context, table string, rows interface{}) (err error) {
	defer s.observe(table, "insert", time.Now(), &err)
	query, ok, err := insertStatement(table, rows)
	if err != nil || !ok {
		return err
	}
	if _, err := sqlx.NamedExecContext(ctx, s.q, query, rows); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Upsert inserts rows, updating every non-key column when the conflict columns collide.
func (s *Store) Upsert(ctx context.Context, table string, rows interface{}, conflict ...string) (err error) {
	defer s.observe(table, "upsert", time.Now(), &err)
	if len(conflict) == 0 {
		return fmt.Errorf("upsert %s: conflict columns required", table)
	}
	if err := checkIdentifiers(conflict...); err != nil {
		return err
	}
	query, ok, err := insertStatement(table, rows)
	if err != nil || !ok {
		return err
	}
	cols, _ := columnsOf(rows)
	skip := map[string]struct{}{"id": {}, "created_at": {}}
	for _, c := range conflict {
		skip[c] = struct{}{}
	}
	updates := make([]string, 0, len(cols))
	for _, c := range cols {
		if _, ok := skip[c]; ok {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	query = fmt.Sprintf("%s ON CONFLICT (%s) %s", query, strings.Join(conflict, ", "), action)
	if _, err := sqlx.NamedExecContext(ctx, s.q, query, rows); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// Update sets the given columns on matching rows and reports how many changed.
func (s *Store) Update(ctx context.Context, table string, values map[string]interface{}, filters ...Filter) (affected int64, err error) {
	defer s.observe(table, "update", time.Now(), &err)
	if len(values) == 0 {
		return 0, nil
	}
	if len(filters) == 0 {
		return 0, fmt.Errorf("update %s: refusing to update without filters", table)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := checkIdentifiers(append([]string{table}, keys...)...); err != nil {
		return 0, err
	}
	set := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+len(filters))
	for i, k := range keys {
		set[i] = fmt.Sprintf("%s = $%d", k, i+1)
		args = append(args, values[k])
	}
	clause, whereArgs, err := whereClause(filters, len(keys)+1)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)
	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(set, ", "), clause)
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Delete removes matching rows and reports how many were removed.
func (s *Store) Delete(ctx context.Context, table string, filters ...Filter) (affected int64, err error) {
	defer s.observe(table, "delete", time.Now(), &err)
	if len(filters) == 0 {
		return 0, fmt.Errorf("delete %s: refusing to delete without filters", table)
	}
	if err := checkIdentifiers(table); err != nil {
		return 0, err
	}
	clause, args, err := whereClause(filters, 1)
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", table, clause), args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Ext exposes the underlying handle for hand-written statements that must share a transaction.
func (s *Store) Ext() sqlx.ExtContext {
	return s.q
}

func (s *Store) observe(table, op string, start time.Time, err *error) {
	if s.observer == nil {
		return
	}
	s.observer(table, op, time.Since(start), *err)
}

func insertStatement(table string, rows interface{}) (string, bool, error) {
	v := reflect.ValueOf(rows)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Len() == 0 {
		return "", false, nil
	}
	cols, err := columnsOf(rows)
	if err != nil {
		return "", false, err
	}
	if err := checkIdentifiers(append([]string{table}, cols...)...); err != nil {
		return "", false, err
	}
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(named, ", ")), true, nil
}

func whereClause(filters []Filter, start int) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filters))
	args := make([]interface{}, 0, len(filters))
	pos := start
	for _, f := range filters {
		if err := checkIdentifiers(f.column); err != nil {
			return "", nil, err
		}
		switch {
		case f.set:
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", f.column, pos))
			args = append(args, pq.Array(f.value))
			pos++
		case f.value == nil:
			parts = append(parts, f.column+" IS NULL")
		default:
			parts = append(parts, fmt.Sprintf("%s = $%d", f.column, pos))
			args = append(args, f.value)
			pos++
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func orderClause(order []string) (string, error) {
	parts := make([]string, len(order))
	for i, o := range order {
		fields := strings.Fields(o)
		if len(fields) == 0 || len(fields) > 2 {
			return "", fmt.Errorf("invalid order %q", o)
		}
		if err := checkIdentifiers(fields[0]); err != nil {
			return "", err
		}
		if len(fields) == 2 {
			dir := strings.ToUpper(fields[1])
			if dir != "ASC" && dir != "DESC" {
				return "", fmt.Errorf("invalid order direction %q", fields[1])
			}
			parts[i] = fields[0] + " " + dir
			continue
		}
		parts[i] = fields[0]
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !identifierPattern.MatchString(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}

var columnCache sync.Map

func columnsOf(v interface{}) ([]string, error) {
	t := reflect.TypeOf(v)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("datastore: %T is not a struct or slice of structs", v)
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]string), nil
	}
	cols := structColumns(t)
	if len(cols) == 0 {
		return nil, fmt.Errorf("datastore: %s has no db tagged fields", t)
	}
	columnCache.Store(t, cols)
	return cols, nil
}

func structColumns(t reflect.Type) []string {
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			cols = append(cols, structColumns(f.Type)...)
			continue
		}
		if f.PkgPath != "" || tag == "" {
			continue
		}
		cols = append(cols, strings.Split(tag, ",")[0])
	}
	return cols
}
