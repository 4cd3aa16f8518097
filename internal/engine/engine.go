// Package engine orchestrates the work order lifecycle: it is the only
// writer to the store, owns the per-order locks, and turns lifecycle
// events into row updates plus audit entries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/events"
	"orderline/internal/store"
	"orderline/internal/threads"
	"orderline/internal/workorder"
)

// ErrBusy is returned when the per-order lock could not be acquired
// within the configured wait.
var ErrBusy = errors.New("work order busy")

// ErrConflictRetryExhausted is returned when another writer kept
// changing the row between our read and write for every attempt.
var ErrConflictRetryExhausted = errors.New("conflict retries exhausted")

type Engine struct {
	Store   store.Store
	Threads threads.Resolver
	Events  events.Writer
	Config  *config.Config
	Log     zerolog.Logger
	Now     func() time.Time

	locks *keyLocks
}

func New(st store.Store, cfg *config.Config, log zerolog.Logger) Engine {
	return Engine{
		Store:   st,
		Threads: threads.StoreResolver{Store: st},
		Events:  events.Writer{Store: st},
		Config:  cfg,
		Log:     log,
		Now:     time.Now,
		locks:   newKeyLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ApplyEvent runs one lifecycle event against a work order under the
// order's lock. actorID names the user the event concerns; events that
// take no actor ignore it.
func (e Engine) ApplyEvent(ctx context.Context, workOrderID string, ev domain.Event, actorID string) (domain.WorkOrder, error) {
	w, err := e.mutateWorkOrder(ctx, workOrderID, func(cur domain.WorkOrder) (domain.WorkOrder, error) {
		return workorder.Apply(cur, ev, actorID, e.now())
	})
	if err != nil {
		return domain.WorkOrder{}, err
	}
	e.appendEvent(ctx, "workorder."+string(ev), w.ProjectID, "workorder", w.WorkOrderID, actorID, events.EventPayload{
		"status":             string(w.Status),
		"total_time_seconds": w.TotalTimeSeconds,
	})
	e.Log.Info().
		Str("work_order_id", w.WorkOrderID).
		Str("event", string(ev)).
		Str("status", string(w.Status)).
		Int64("total_time_seconds", w.TotalTimeSeconds).
		Msg("work order transition")
	return w, nil
}

// ApplyEventByThread resolves the chat thread to its work order and
// applies the event there.
func (e Engine) ApplyEventByThread(ctx context.Context, threadID string, ev domain.Event, actorID string) (domain.WorkOrder, error) {
	id, err := e.Threads.ResolveWorkOrderID(ctx, threadID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	return e.ApplyEvent(ctx, id, ev, actorID)
}

// mutateWorkOrder is the single write path for work order rows: lock the
// order, read, apply, re-read to detect a racing writer, then overwrite
// the whole row. A changed row between read and write restarts the
// cycle, up to the configured attempts.
func (e Engine) mutateWorkOrder(ctx context.Context, id string, apply func(domain.WorkOrder) (domain.WorkOrder, error)) (domain.WorkOrder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.WorkOrder{}, errors.New("work order id is required")
	}
	if err := e.locks.acquire(ctx, id, e.lockWait()); err != nil {
		return domain.WorkOrder{}, err
	}
	defer e.locks.release(id)

	attempts := e.conflictAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		snapshot, err := e.readRow(ctx, domain.TableWorkOrders, id)
		if err != nil {
			return domain.WorkOrder{}, err
		}
		w, err := domain.WorkOrderFromRow(snapshot)
		if err != nil {
			return domain.WorkOrder{}, err
		}
		next, err := apply(w)
		if err != nil {
			return domain.WorkOrder{}, err
		}
		current, err := e.readRow(ctx, domain.TableWorkOrders, id)
		if err != nil {
			return domain.WorkOrder{}, err
		}
		if !slices.Equal(current, snapshot) {
			e.Log.Warn().
				Str("work_order_id", id).
				Int("attempt", attempt).
				Msg("row changed under us, retrying")
			continue
		}
		if err := e.writeRow(ctx, domain.TableWorkOrders, id, next.Row()); err != nil {
			return domain.WorkOrder{}, err
		}
		return next, nil
	}
	return domain.WorkOrder{}, fmt.Errorf("%w: work order %s after %d attempts", ErrConflictRetryExhausted, id, attempts)
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID             string
	ChannelID      string
	Title          string
	Deliverables   string
	KPI            string
	DueDate        string
	AccountableID  string
	DriveFolderURL string
	ActorID        string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, errors.New("title is required")
	}
	p := domain.Project{
		ProjectID:      strings.TrimSpace(opts.ID),
		ChannelID:      opts.ChannelID,
		Status:         domain.ProjectActive,
		Title:          opts.Title,
		Deliverables:   opts.Deliverables,
		KPI:            opts.KPI,
		DueDate:        opts.DueDate,
		AccountableID:  opts.AccountableID,
		DriveFolderURL: opts.DriveFolderURL,
	}
	generated := p.ProjectID == ""
	for attempt := 0; ; attempt++ {
		if generated {
			p.ProjectID = newProjectID()
		}
		err := e.appendRow(ctx, domain.TableProjects, p.Row())
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrExists) {
			if generated && attempt < 3 {
				continue
			}
			return domain.Project{}, fmt.Errorf("project %s already exists", p.ProjectID)
		}
		return domain.Project{}, err
	}
	e.appendEvent(ctx, "project.created", p.ProjectID, "project", p.ProjectID, opts.ActorID, events.EventPayload{
		"title": p.Title,
	})
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row, err := e.readRow(ctx, domain.TableProjects, strings.TrimSpace(id))
	if err != nil {
		return domain.Project{}, err
	}
	return domain.ProjectFromRow(row)
}

func (e Engine) ListProjects(ctx context.Context, status string) ([]domain.Project, error) {
	rows, err := e.rows(ctx, domain.TableProjects)
	if err != nil {
		return nil, err
	}
	var out []domain.Project
	for _, row := range rows {
		p, err := domain.ProjectFromRow(row)
		if err != nil {
			return nil, err
		}
		if status != "" && string(p.Status) != status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ProjectUpdateOptions carries the editable project fields. Nil means
// leave the field alone.
type ProjectUpdateOptions struct {
	ChannelID      *string
	Title          *string
	Deliverables   *string
	KPI            *string
	DueDate        *string
	AccountableID  *string
	DriveFolderURL *string
	ActorID        string
}

func (e Engine) UpdateProject(ctx context.Context, id string, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status.Terminal() {
		return domain.Project{}, fmt.Errorf("project %s is %s and cannot be edited", p.ProjectID, p.Status)
	}
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return domain.Project{}, errors.New("title cannot be empty")
		}
		p.Title = *opts.Title
	}
	if opts.ChannelID != nil {
		p.ChannelID = *opts.ChannelID
	}
	if opts.Deliverables != nil {
		p.Deliverables = *opts.Deliverables
	}
	if opts.KPI != nil {
		p.KPI = *opts.KPI
	}
	if opts.DueDate != nil {
		p.DueDate = *opts.DueDate
	}
	if opts.AccountableID != nil {
		p.AccountableID = *opts.AccountableID
	}
	if opts.DriveFolderURL != nil {
		p.DriveFolderURL = *opts.DriveFolderURL
	}
	if err := e.writeRow(ctx, domain.TableProjects, p.ProjectID, p.Row()); err != nil {
		return domain.Project{}, err
	}
	e.appendEvent(ctx, "project.updated", p.ProjectID, "project", p.ProjectID, opts.ActorID, nil)
	return p, nil
}

// FinishProject marks an active project finished and stamps DueDate
// with the finish date. Work orders are left as they are; finishing is
// a bookkeeping act, not a cascade.
func (e Engine) FinishProject(ctx context.Context, id, actorID string) (domain.Project, error) {
	p, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status != domain.ProjectActive {
		return domain.Project{}, fmt.Errorf("project %s is %s, only active projects can be finished", p.ProjectID, p.Status)
	}
	p.Status = domain.ProjectFinished
	p.DueDate = e.now().UTC().Format("2006-01-02")
	if err := e.writeRow(ctx, domain.TableProjects, p.ProjectID, p.Row()); err != nil {
		return domain.Project{}, err
	}
	e.appendEvent(ctx, "project.finished", p.ProjectID, "project", p.ProjectID, actorID, nil)
	return p, nil
}

// CancelProject cancels the project and then cancels every non-terminal
// work order under it, closing any running timers. The project row is
// flipped first so a partial cascade never leaves cancelled orders under
// an active project.
func (e Engine) CancelProject(ctx context.Context, id, actorID string) (domain.Project, error) {
	p, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status.Terminal() {
		return domain.Project{}, fmt.Errorf("project %s is already %s", p.ProjectID, p.Status)
	}
	p.Status = domain.ProjectCancelled
	if err := e.writeRow(ctx, domain.TableProjects, p.ProjectID, p.Row()); err != nil {
		return domain.Project{}, err
	}
	e.appendEvent(ctx, "project.cancelled", p.ProjectID, "project", p.ProjectID, actorID, nil)

	orders, err := e.ListWorkOrders(ctx, WorkOrderFilters{ProjectID: p.ProjectID})
	if err != nil {
		return domain.Project{}, err
	}
	for _, w := range orders {
		if w.Status.Terminal() {
			continue
		}
		if _, err := e.ApplyEvent(ctx, w.WorkOrderID, domain.EventCancel, actorID); err != nil {
			return domain.Project{}, fmt.Errorf("cancel work order %s: %w", w.WorkOrderID, err)
		}
	}
	return p, nil
}

// WorkOrderCreateOptions are parameters for creating a work order.
type WorkOrderCreateOptions struct {
	ID             string
	ProjectID      string
	ThreadID       string
	Title          string
	Deliverables   string
	PushedToUserID string
	ActorID        string
}

func (e Engine) CreateWorkOrder(ctx context.Context, opts WorkOrderCreateOptions) (domain.WorkOrder, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.WorkOrder{}, errors.New("title is required")
	}
	if strings.TrimSpace(opts.ProjectID) == "" {
		return domain.WorkOrder{}, errors.New("project is required")
	}
	if strings.TrimSpace(opts.ThreadID) == "" {
		return domain.WorkOrder{}, errors.New("thread is required")
	}
	p, err := e.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if p.Status != domain.ProjectActive {
		return domain.WorkOrder{}, fmt.Errorf("project %s is %s, work orders need an active project", p.ProjectID, p.Status)
	}
	// The bind check and the append hold a thread-scoped lock so two
	// concurrent creates on one thread cannot both pass the check.
	threadKey := "thread/" + opts.ThreadID
	if err := e.locks.acquire(ctx, threadKey, e.lockWait()); err != nil {
		return domain.WorkOrder{}, err
	}
	defer e.locks.release(threadKey)
	if bound, err := e.Threads.ResolveWorkOrderID(ctx, opts.ThreadID); err == nil {
		return domain.WorkOrder{}, fmt.Errorf("thread %s is already bound to work order %s", opts.ThreadID, bound)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.WorkOrder{}, err
	}
	w := domain.WorkOrder{
		WorkOrderID:    strings.TrimSpace(opts.ID),
		ProjectID:      p.ProjectID,
		ThreadID:       opts.ThreadID,
		Status:         domain.StatusPending,
		Title:          opts.Title,
		Deliverables:   opts.Deliverables,
		PushedToUserID: opts.PushedToUserID,
	}
	generated := w.WorkOrderID == ""
	for attempt := 0; ; attempt++ {
		if generated {
			w.WorkOrderID = newWorkOrderID(p.ProjectID)
		}
		err := e.appendRow(ctx, domain.TableWorkOrders, w.Row())
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrExists) {
			if generated && attempt < 3 {
				continue
			}
			return domain.WorkOrder{}, fmt.Errorf("work order %s already exists", w.WorkOrderID)
		}
		return domain.WorkOrder{}, err
	}
	e.appendEvent(ctx, "workorder.created", w.ProjectID, "workorder", w.WorkOrderID, opts.ActorID, events.EventPayload{
		"thread_id": w.ThreadID,
		"title":     w.Title,
	})
	return w, nil
}

func (e Engine) GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	row, err := e.readRow(ctx, domain.TableWorkOrders, strings.TrimSpace(id))
	if err != nil {
		return domain.WorkOrder{}, err
	}
	return domain.WorkOrderFromRow(row)
}

func (e Engine) GetWorkOrderByThread(ctx context.Context, threadID string) (domain.WorkOrder, error) {
	id, err := e.Threads.ResolveWorkOrderID(ctx, threadID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	return e.GetWorkOrder(ctx, id)
}

// WorkOrderFilters narrow ListWorkOrders. Zero values match everything.
type WorkOrderFilters struct {
	ProjectID  string
	Status     string
	InProgress bool
}

func (e Engine) ListWorkOrders(ctx context.Context, f WorkOrderFilters) ([]domain.WorkOrder, error) {
	rows, err := e.rows(ctx, domain.TableWorkOrders)
	if err != nil {
		return nil, err
	}
	var out []domain.WorkOrder
	for _, row := range rows {
		w, err := domain.WorkOrderFromRow(row)
		if err != nil {
			return nil, err
		}
		if f.ProjectID != "" && w.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && string(w.Status) != f.Status {
			continue
		}
		if f.InProgress && w.Status != domain.StatusInProgress {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// WorkOrderUpdateOptions carries the editable work order fields. Nil
// means leave the field alone.
type WorkOrderUpdateOptions struct {
	Title          *string
	Deliverables   *string
	PushedToUserID *string
	ActorID        string
}

// UpdateWorkOrder edits descriptive fields. Reassignment by editing
// PushedToUserID is only allowed before work starts; once the order has
// been in progress the assignment history belongs to the timeline.
func (e Engine) UpdateWorkOrder(ctx context.Context, id string, opts WorkOrderUpdateOptions) (domain.WorkOrder, error) {
	w, err := e.mutateWorkOrder(ctx, id, func(cur domain.WorkOrder) (domain.WorkOrder, error) {
		if opts.Title != nil {
			if strings.TrimSpace(*opts.Title) == "" {
				return domain.WorkOrder{}, errors.New("title cannot be empty")
			}
			cur.Title = *opts.Title
		}
		if opts.Deliverables != nil {
			cur.Deliverables = *opts.Deliverables
		}
		if opts.PushedToUserID != nil {
			if cur.Status != domain.StatusPending && cur.Status != domain.StatusPushedToUser {
				return domain.WorkOrder{}, fmt.Errorf("cannot reassign work order %s while %s", cur.WorkOrderID, cur.Status)
			}
			cur.PushedToUserID = *opts.PushedToUserID
		}
		return cur, nil
	})
	if err != nil {
		return domain.WorkOrder{}, err
	}
	e.appendEvent(ctx, "workorder.updated", w.ProjectID, "workorder", w.WorkOrderID, opts.ActorID, nil)
	return w, nil
}

// TimeReport is the read-side view of a work order's clock.
type TimeReport struct {
	WorkOrderID      string `json:"work_order_id"`
	Status           string `json:"status"`
	Running          bool   `json:"running"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
	LiveTotalSeconds int64  `json:"live_total_seconds"`
	Clock            string `json:"clock"`
}

func (e Engine) WorkOrderTime(ctx context.Context, id string) (TimeReport, error) {
	w, err := e.GetWorkOrder(ctx, id)
	if err != nil {
		return TimeReport{}, err
	}
	live := workorder.LiveTotal(w, e.now())
	return TimeReport{
		WorkOrderID:      w.WorkOrderID,
		Status:           string(w.Status),
		Running:          w.Running(),
		TotalTimeSeconds: w.TotalTimeSeconds,
		LiveTotalSeconds: live,
		Clock:            workorder.FormatClock(live),
	}, nil
}

// withRetry reruns op while the store reports itself unavailable, with
// capped exponential backoff. Every other error is final.
func withRetry[T any](ctx context.Context, e Engine, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retryInitial()
	bo.MaxInterval = e.retryMax()
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, store.ErrUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(e.retryTries()))
}

func (e Engine) readRow(ctx context.Context, table, key string) ([]string, error) {
	return withRetry(ctx, e, func() ([]string, error) {
		return e.Store.ReadRow(ctx, table, key)
	})
}

func (e Engine) writeRow(ctx context.Context, table, key string, row []string) error {
	_, err := withRetry(ctx, e, func() (struct{}, error) {
		return struct{}{}, e.Store.WriteRow(ctx, table, key, row)
	})
	return err
}

func (e Engine) appendRow(ctx context.Context, table string, row []string) error {
	_, err := withRetry(ctx, e, func() (struct{}, error) {
		return struct{}{}, e.Store.AppendRow(ctx, table, row)
	})
	return err
}

func (e Engine) rows(ctx context.Context, table string) ([][]string, error) {
	return withRetry(ctx, e, func() ([][]string, error) {
		return e.Store.Rows(ctx, table)
	})
}

// appendEvent records an audit entry. The feed is best effort: a failed
// append is logged, never surfaced, so bookkeeping cannot undo a
// committed transition.
func (e Engine) appendEvent(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) {
	if _, err := e.Events.Append(ctx, evtType, projectID, entityKind, entityID, actorID, payload); err != nil {
		e.Log.Warn().Err(err).Str("event_type", evtType).Msg("audit append failed")
	}
}

func (e Engine) lockWait() time.Duration {
	if e.Config != nil && e.Config.Engine.LockWaitMS > 0 {
		return time.Duration(e.Config.Engine.LockWaitMS) * time.Millisecond
	}
	return 2 * time.Second
}

func (e Engine) conflictAttempts() int {
	if e.Config != nil && e.Config.Engine.ConflictAttempts > 0 {
		return e.Config.Engine.ConflictAttempts
	}
	return 3
}

func (e Engine) retryInitial() time.Duration {
	if e.Config != nil && e.Config.Engine.RetryInitialMS > 0 {
		return time.Duration(e.Config.Engine.RetryInitialMS) * time.Millisecond
	}
	return 250 * time.Millisecond
}

func (e Engine) retryMax() time.Duration {
	if e.Config != nil && e.Config.Engine.RetryMaxMS > 0 {
		return time.Duration(e.Config.Engine.RetryMaxMS) * time.Millisecond
	}
	return 2 * time.Second
}

func (e Engine) retryTries() uint {
	if e.Config != nil && e.Config.Engine.RetryMaxTries > 0 {
		return uint(e.Config.Engine.RetryMaxTries)
	}
	return 4
}

func newProjectID() string {
	return "proj-" + shortID()
}

func newWorkOrderID(projectID string) string {
	return fmt.Sprintf("wo-%s-%s", strings.TrimPrefix(projectID, "proj-"), shortID())
}

func shortID() string {
	return uuid.NewString()[:4]
}
