// Package threads maps discussion threads to the work orders bound to
// them. Creating threads belongs to the chat layer; this side only
// resolves the binding.
package threads

import (
	"context"
	"fmt"
	"strings"

	"orderline/internal/domain"
	"orderline/internal/store"
)

type Resolver interface {
	ResolveWorkOrderID(ctx context.Context, threadID string) (string, error)
}

// StoreResolver scans the WorkOrders table for the thread binding.
// Every order carries its thread in the ThreadID cell and bindings are
// unique, so the first match is the only one.
type StoreResolver struct {
	Store store.Store
}

func (r StoreResolver) ResolveWorkOrderID(ctx context.Context, threadID string) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", fmt.Errorf("thread id is required")
	}
	rows, err := r.Store.Rows(ctx, domain.TableWorkOrders)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if len(row) > 2 && row[2] == threadID {
			return row[0], nil
		}
	}
	return "", fmt.Errorf("%w: no work order bound to thread %s", store.ErrNotFound, threadID)
}
