package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"orderline/internal/domain"
	"orderline/internal/store"
)

type Writer struct {
	Store store.Store
	Now   func() time.Time
}

type EventPayload map[string]any

// Append writes one audit row. Event ids are UUIDv7 so the feed sorts
// by time even across process restarts.
func (w Writer) Append(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) (domain.AuditEvent, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("marshal event payload: %w", err)
	}
	evt := domain.AuditEvent{
		EventID:    uuid.Must(uuid.NewV7()).String(),
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		ProjectID:  projectID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	if err := w.Store.AppendRow(ctx, domain.TableEvents, evt.Row()); err != nil {
		return domain.AuditEvent{}, err
	}
	return evt, nil
}

// After returns up to limit events with ids greater than cursor, oldest
// first. An empty cursor reads from the beginning.
func (w Writer) After(ctx context.Context, cursor string, limit int) ([]domain.AuditEvent, error) {
	rows, err := w.Store.Rows(ctx, domain.TableEvents)
	if err != nil {
		return nil, err
	}
	var out []domain.AuditEvent
	for _, row := range rows {
		evt, err := domain.AuditEventFromRow(row)
		if err != nil {
			return nil, err
		}
		if cursor != "" && evt.EventID <= cursor {
			continue
		}
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Latest returns the id of the newest event, or "" when the feed is
// empty.
func (w Writer) Latest(ctx context.Context) (string, error) {
	rows, err := w.Store.Rows(ctx, domain.TableEvents)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, row := range rows {
		if len(row) > 0 && row[0] > latest {
			latest = row[0]
		}
	}
	return latest, nil
}
