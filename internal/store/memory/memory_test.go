package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderline/internal/domain"
	"orderline/internal/store"
)

func TestAppendReadWrite(t *testing.T) {
	s := New()
	ctx := context.Background()

	row := []string{"proj-1", "chan-1", "Active", "Launch", "", "", "", "U9", ""}
	require.NoError(t, s.AppendRow(ctx, domain.TableProjects, row))

	got, err := s.ReadRow(ctx, domain.TableProjects, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, row, got)

	got[3] = "mutated"
	again, err := s.ReadRow(ctx, domain.TableProjects, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Launch", again[3], "reads must return copies")

	row[3] = "Relaunch"
	require.NoError(t, s.WriteRow(ctx, domain.TableProjects, "proj-1", row))
	got, err = s.ReadRow(ctx, domain.TableProjects, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Relaunch", got[3])
}

func TestReadMissingRow(t *testing.T) {
	s := New()
	_, err := s.ReadRow(context.Background(), domain.TableWorkOrders, "wo-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWriteRequiresExistingRow(t *testing.T) {
	s := New()
	err := s.WriteRow(context.Background(), domain.TableProjects, "proj-1",
		[]string{"proj-1", "", "Active", "", "", "", "", "", ""})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendDuplicateKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	row := []string{"proj-1", "", "Active", "", "", "", "", "", ""}
	require.NoError(t, s.AppendRow(ctx, domain.TableProjects, row))
	assert.ErrorIs(t, s.AppendRow(ctx, domain.TableProjects, row), store.ErrExists)
}

func TestRowsPreserveAppendOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("proj-%d", i)
		require.NoError(t, s.AppendRow(ctx, domain.TableProjects,
			[]string{key, "", "Active", "", "", "", "", "", ""}))
	}
	rows, err := s.Rows(ctx, domain.TableProjects)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("proj-%d", i), row[0])
	}
}

func TestUnknownTable(t *testing.T) {
	s := New()
	_, err := s.ReadRow(context.Background(), "Sheets", "x")
	assert.Error(t, err)
}

func TestConcurrentAppends(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("wo-%d", i)
			err := s.AppendRow(ctx, domain.TableWorkOrders,
				[]string{key, "proj-1", key, "Pending", "", "", "", "", "", "", "0"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	rows, err := s.Rows(ctx, domain.TableWorkOrders)
	require.NoError(t, err)
	assert.Len(t, rows, 50)
}
