// Package sheetdb persists the tabular contract in SQLite: one TEXT
// column per cell, in contract order. Reads and writes are single
// statements; the contract offers no multi-row atomicity, so none is
// taken here either.
package sheetdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite "modernc.org/sqlite"

	"orderline/internal/domain"
	"orderline/internal/store"
)

type tableSpec struct {
	name    string
	columns []string
}

var tables = map[string]tableSpec{
	domain.TableProjects: {name: "projects", columns: []string{
		"project_id", "channel_id", "status", "title", "deliverables",
		"kpi", "due_date", "accountable_id", "drive_folder_url",
	}},
	domain.TableWorkOrders: {name: "work_orders", columns: []string{
		"work_order_id", "project_id", "thread_id", "status", "title",
		"deliverables", "pushed_to_user_id", "in_progress_user_id",
		"qa_submitted_by_id", "current_start_time", "total_time_seconds",
	}},
	domain.TableEvents: {name: "events", columns: []string{
		"event_id", "ts", "type", "project_id", "entity_kind",
		"entity_id", "actor_id", "payload",
	}},
}

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) ReadRow(ctx context.Context, table, id string) ([]string, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
		strings.Join(spec.columns, ", "), spec.name, spec.columns[0])
	cells := make([]string, len(spec.columns))
	dest := make([]any, len(cells))
	for i := range cells {
		dest[i] = &cells[i]
	}
	if err := s.DB.QueryRowContext(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, table, id)
		}
		return nil, mapError(err)
	}
	return cells, nil
}

func (s *Store) WriteRow(ctx context.Context, table, id string, row []string) error {
	spec, err := specFor(table)
	if err != nil {
		return err
	}
	if err := checkRow(spec, row); err != nil {
		return err
	}
	if row[0] != id {
		return fmt.Errorf("write to %s/%s: row key cell is %q", table, id, row[0])
	}
	sets := make([]string, len(spec.columns))
	args := make([]any, 0, len(row)+1)
	for i, col := range spec.columns {
		sets[i] = col + " = ?"
		args = append(args, row[i])
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`,
		spec.name, strings.Join(sets, ", "), spec.columns[0])
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, table, id)
	}
	return nil
}

func (s *Store) AppendRow(ctx context.Context, table string, row []string) error {
	spec, err := specFor(table)
	if err != nil {
		return err
	}
	if err := checkRow(spec, row); err != nil {
		return err
	}
	if row[0] == "" {
		return fmt.Errorf("append to %s: row key missing", table)
	}
	placeholders := strings.TrimRight(strings.Repeat("?, ", len(row)), ", ")
	args := make([]any, len(row))
	for i, cell := range row {
		args[i] = cell
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		spec.name, strings.Join(spec.columns, ", "), placeholders)
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Rows(ctx context.Context, table string) ([][]string, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY rowid`,
		strings.Join(spec.columns, ", "), spec.name)
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out [][]string
	for rows.Next() {
		cells := make([]string, len(spec.columns))
		dest := make([]any, len(cells))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, mapError(err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func specFor(table string) (tableSpec, error) {
	spec, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("unknown table %q", table)
	}
	return spec, nil
}

func checkRow(spec tableSpec, row []string) error {
	if len(row) != len(spec.columns) {
		return fmt.Errorf("%s row has %d cells, want %d", spec.name, len(row), len(spec.columns))
	}
	return nil
}

// mapError folds driver failures onto the store sentinels. Constraint
// violations mean a duplicate key; everything else is treated as
// transient and left to the caller's retry policy.
func mapError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == 19 {
		return fmt.Errorf("%w: %v", store.ErrExists, err)
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
