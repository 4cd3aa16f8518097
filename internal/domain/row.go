package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TableProjects   = "Projects"
	TableWorkOrders = "WorkOrders"
	TableEvents     = "Events"
)

// Column order below is the contract with the deployed sheets. Cell 0 is
// always the row key. Reordering a slice here is a breaking change.
var (
	ProjectColumns = []string{
		"ProjectID", "ChannelID", "Status", "Title", "Deliverables",
		"KPI", "DueDate", "AccountableID", "DriveFolderURL",
	}
	WorkOrderColumns = []string{
		"WorkOrderID", "ProjectID", "ThreadID", "Status", "Title",
		"Deliverables", "PushedToUserID", "InProgressUserID",
		"QASubmittedByID", "CurrentStartTime", "TotalTimeSeconds",
	}
	EventColumns = []string{
		"EventID", "TS", "Type", "ProjectID", "EntityKind",
		"EntityID", "ActorID", "Payload",
	}
)

func (p Project) Row() []string {
	return []string{
		p.ProjectID,
		p.ChannelID,
		string(p.Status),
		p.Title,
		p.Deliverables,
		p.KPI,
		p.DueDate,
		p.AccountableID,
		p.DriveFolderURL,
	}
}

func ProjectFromRow(row []string) (Project, error) {
	if len(row) != len(ProjectColumns) {
		return Project{}, fmt.Errorf("project row has %d cells, want %d", len(row), len(ProjectColumns))
	}
	status, err := ParseProjectStatus(row[2])
	if err != nil {
		return Project{}, fmt.Errorf("project %s: %w", row[0], err)
	}
	return Project{
		ProjectID:      row[0],
		ChannelID:      row[1],
		Status:         status,
		Title:          row[3],
		Deliverables:   row[4],
		KPI:            row[5],
		DueDate:        row[6],
		AccountableID:  row[7],
		DriveFolderURL: row[8],
	}, nil
}

func (w WorkOrder) Row() []string {
	start := ""
	if w.CurrentStartTime != nil {
		start = w.CurrentStartTime.UTC().Format(time.RFC3339)
	}
	return []string{
		w.WorkOrderID,
		w.ProjectID,
		w.ThreadID,
		string(w.Status),
		w.Title,
		w.Deliverables,
		w.PushedToUserID,
		w.InProgressUserID,
		w.QASubmittedByID,
		start,
		strconv.FormatInt(w.TotalTimeSeconds, 10),
	}
}

func WorkOrderFromRow(row []string) (WorkOrder, error) {
	if len(row) != len(WorkOrderColumns) {
		return WorkOrder{}, fmt.Errorf("work order row has %d cells, want %d", len(row), len(WorkOrderColumns))
	}
	status, err := ParseStatus(row[3])
	if err != nil {
		return WorkOrder{}, fmt.Errorf("work order %s: %w", row[0], err)
	}
	w := WorkOrder{
		WorkOrderID:      row[0],
		ProjectID:        row[1],
		ThreadID:         row[2],
		Status:           status,
		Title:            row[4],
		Deliverables:     row[5],
		PushedToUserID:   row[6],
		InProgressUserID: row[7],
		QASubmittedByID:  row[8],
	}
	if cell := strings.TrimSpace(row[9]); cell != "" {
		ts, err := time.Parse(time.RFC3339, cell)
		if err != nil {
			return WorkOrder{}, fmt.Errorf("work order %s: bad CurrentStartTime %q: %w", row[0], cell, err)
		}
		utc := ts.UTC()
		w.CurrentStartTime = &utc
	}
	if cell := strings.TrimSpace(row[10]); cell != "" {
		total, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return WorkOrder{}, fmt.Errorf("work order %s: bad TotalTimeSeconds %q: %w", row[0], cell, err)
		}
		if total < 0 {
			return WorkOrder{}, fmt.Errorf("work order %s: negative TotalTimeSeconds %d", row[0], total)
		}
		w.TotalTimeSeconds = total
	}
	return w, nil
}

func (e AuditEvent) Row() []string {
	return []string{
		e.EventID,
		e.TS,
		e.Type,
		e.ProjectID,
		e.EntityKind,
		e.EntityID,
		e.ActorID,
		e.Payload,
	}
}

func AuditEventFromRow(row []string) (AuditEvent, error) {
	if len(row) != len(EventColumns) {
		return AuditEvent{}, fmt.Errorf("event row has %d cells, want %d", len(row), len(EventColumns))
	}
	return AuditEvent{
		EventID:    row[0],
		TS:         row[1],
		Type:       row[2],
		ProjectID:  row[3],
		EntityKind: row[4],
		EntityID:   row[5],
		ActorID:    row[6],
		Payload:    row[7],
	}, nil
}
