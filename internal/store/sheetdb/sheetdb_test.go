package sheetdb

import (
	"context"
	"errors"
	"testing"

	"orderline/internal/domain"
	"orderline/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWorkOrderRowRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := []string{
		"wo-9f21-a3b4", "proj-9f21", "thread-100", "InProgress",
		"Edit launch video", "final cut", "U1", "U1", "",
		"2024-03-05T12:00:00Z", "90",
	}
	if err := s.AppendRow(ctx, domain.TableWorkOrders, row); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.ReadRow(ctx, domain.TableWorkOrders, "wo-9f21-a3b4")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range row {
		if got[i] != row[i] {
			t.Fatalf("cell %d (%s) = %q, want %q", i, domain.WorkOrderColumns[i], got[i], row[i])
		}
	}

	row[3] = "QASubmitted"
	row[8] = "U1"
	row[9] = ""
	if err := s.WriteRow(ctx, domain.TableWorkOrders, "wo-9f21-a3b4", row); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err = s.ReadRow(ctx, domain.TableWorkOrders, "wo-9f21-a3b4")
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if got[3] != "QASubmitted" || got[9] != "" {
		t.Fatalf("overwrite not whole-row: status=%q start=%q", got[3], got[9])
	}
}

func TestReadMissingRow(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadRow(context.Background(), domain.TableProjects, "proj-nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestWriteMissingRow(t *testing.T) {
	s := newTestStore(t)
	row := []string{"proj-1", "", "Active", "", "", "", "", "", ""}
	err := s.WriteRow(context.Background(), domain.TableProjects, "proj-1", row)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestAppendDuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	row := []string{"proj-1", "", "Active", "", "", "", "", "", ""}
	if err := s.AppendRow(ctx, domain.TableProjects, row); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendRow(ctx, domain.TableProjects, row); !errors.Is(err, store.ErrExists) {
		t.Fatalf("got %v, want ErrExists", err)
	}
}

func TestRowKeyMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	row := []string{"proj-1", "", "Active", "", "", "", "", "", ""}
	if err := s.AppendRow(ctx, domain.TableProjects, row); err != nil {
		t.Fatalf("append: %v", err)
	}
	row[0] = "proj-2"
	if err := s.WriteRow(ctx, domain.TableProjects, "proj-1", row); err == nil {
		t.Fatalf("key cell mismatch accepted")
	}
}

func TestRowsInAppendOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"proj-c", "proj-a", "proj-b"} {
		if err := s.AppendRow(ctx, domain.TableProjects,
			[]string{id, "", "Active", "", "", "", "", "", ""}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	rows, err := s.Rows(ctx, domain.TableProjects)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	want := []string{"proj-c", "proj-a", "proj-b"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, row := range rows {
		if row[0] != want[i] {
			t.Fatalf("row %d = %s, want %s", i, row[0], want[i])
		}
	}
}

func TestAppendDuplicateThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := []string{
		"wo-9f21-a001", "proj-9f21", "thread-42", "Pending",
		"First", "", "", "", "", "", "0",
	}
	second := []string{
		"wo-9f21-b002", "proj-9f21", "thread-42", "Pending",
		"Second", "", "", "", "", "", "0",
	}
	if err := s.AppendRow(ctx, domain.TableWorkOrders, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendRow(ctx, domain.TableWorkOrders, second); !errors.Is(err, store.ErrExists) {
		t.Fatalf("got %v, want ErrExists for reused thread", err)
	}
}
