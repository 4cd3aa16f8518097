// Package memory holds rows in process memory. It backs tests and
// ephemeral runs; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"orderline/internal/domain"
	"orderline/internal/store"
)

type table struct {
	keys []string
	rows map[string][]string
}

// Store implements store.Store over in-memory maps, preserving append
// order per table the way a sheet does.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

func New() *Store {
	return &Store{
		tables: map[string]*table{
			domain.TableProjects:   newTable(),
			domain.TableWorkOrders: newTable(),
			domain.TableEvents:     newTable(),
		},
	}
}

func newTable() *table {
	return &table{rows: make(map[string][]string)}
}

func (s *Store) ReadRow(ctx context.Context, tableName, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, tableName, id)
	}
	return append([]string(nil), row...), nil
}

func (s *Store) WriteRow(ctx context.Context, tableName, id string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(tableName)
	if err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, tableName, id)
	}
	t.rows[id] = append([]string(nil), row...)
	return nil
}

func (s *Store) AppendRow(ctx context.Context, tableName string, row []string) error {
	if len(row) == 0 || row[0] == "" {
		return fmt.Errorf("append to %s: row key missing", tableName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(tableName)
	if err != nil {
		return err
	}
	key := row[0]
	if _, ok := t.rows[key]; ok {
		return fmt.Errorf("%w: %s/%s", store.ErrExists, tableName, key)
	}
	t.keys = append(t.keys, key)
	t.rows[key] = append([]string(nil), row...)
	return nil
}

func (s *Store) Rows(ctx context.Context, tableName string) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(t.keys))
	for _, key := range t.keys {
		out = append(out, append([]string(nil), t.rows[key]...))
	}
	return out, nil
}

func (s *Store) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}
