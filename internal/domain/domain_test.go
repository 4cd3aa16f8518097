package domain

import (
	"strings"
	"testing"
	"time"
)

func TestParseStatusRejectsLegacyStrings(t *testing.T) {
	for _, legacy := range []string{"Open", "InQA", "Approved", "Rework", "pending", ""} {
		if _, err := ParseStatus(legacy); err == nil {
			t.Fatalf("ParseStatus(%q) accepted a string outside the table", legacy)
		}
	}
	if _, err := ParseStatus("QASubmitted"); err != nil {
		t.Fatalf("ParseStatus(QASubmitted): %v", err)
	}
}

func TestParseProjectStatus(t *testing.T) {
	if _, err := ParseProjectStatus("Archived"); err == nil {
		t.Fatalf("unknown project status accepted")
	}
	s, err := ParseProjectStatus("Active")
	if err != nil || s != ProjectActive {
		t.Fatalf("ParseProjectStatus(Active) = %v, %v", s, err)
	}
}

func TestWorkOrderRowContract(t *testing.T) {
	start := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	w := WorkOrder{
		WorkOrderID:      "wo-9f21-a3b4",
		ProjectID:        "proj-9f21",
		ThreadID:         "thread-100",
		Status:           StatusInProgress,
		Title:            "Edit launch video",
		Deliverables:     "final cut",
		PushedToUserID:   "U1",
		InProgressUserID: "U1",
		CurrentStartTime: &start,
		TotalTimeSeconds: 90,
	}
	row := w.Row()
	if len(row) != len(WorkOrderColumns) {
		t.Fatalf("row has %d cells, want %d", len(row), len(WorkOrderColumns))
	}
	if row[9] != "2024-03-05T12:00:00Z" {
		t.Fatalf("CurrentStartTime cell = %q", row[9])
	}
	if row[10] != "90" {
		t.Fatalf("TotalTimeSeconds cell = %q", row[10])
	}
	back, err := WorkOrderFromRow(row)
	if err != nil {
		t.Fatalf("WorkOrderFromRow: %v", err)
	}
	if back.Status != StatusInProgress || !back.CurrentStartTime.Equal(start) || back.TotalTimeSeconds != 90 {
		t.Fatalf("decoded order does not match: %+v", back)
	}
}

func TestWorkOrderRowEmptyStartCell(t *testing.T) {
	w := WorkOrder{
		WorkOrderID: "wo-9f21-a3b4",
		ProjectID:   "proj-9f21",
		ThreadID:    "thread-100",
		Status:      StatusPending,
		Title:       "Edit launch video",
	}
	row := w.Row()
	if row[9] != "" {
		t.Fatalf("unset start time serialized as %q, want empty cell", row[9])
	}
	back, err := WorkOrderFromRow(row)
	if err != nil {
		t.Fatalf("WorkOrderFromRow: %v", err)
	}
	if back.CurrentStartTime != nil {
		t.Fatalf("empty cell decoded to %v", back.CurrentStartTime)
	}
	if back.TotalTimeSeconds != 0 {
		t.Fatalf("total = %d, want 0", back.TotalTimeSeconds)
	}
}

func TestWorkOrderFromRowRejectsBadCells(t *testing.T) {
	good := WorkOrder{
		WorkOrderID: "wo-1", ProjectID: "proj-1", ThreadID: "t-1",
		Status: StatusPending, Title: "x",
	}.Row()

	short := good[:len(good)-1]
	if _, err := WorkOrderFromRow(short); err == nil {
		t.Fatalf("short row accepted")
	}

	legacy := append([]string(nil), good...)
	legacy[3] = "Open"
	if _, err := WorkOrderFromRow(legacy); err == nil || !strings.Contains(err.Error(), "Open") {
		t.Fatalf("legacy status cell: %v", err)
	}

	badTime := append([]string(nil), good...)
	badTime[9] = "yesterday"
	if _, err := WorkOrderFromRow(badTime); err == nil {
		t.Fatalf("unparseable start cell accepted")
	}

	badTotal := append([]string(nil), good...)
	badTotal[10] = "ninety"
	if _, err := WorkOrderFromRow(badTotal); err == nil {
		t.Fatalf("unparseable total cell accepted")
	}

	negTotal := append([]string(nil), good...)
	negTotal[10] = "-90"
	if _, err := WorkOrderFromRow(negTotal); err == nil || !strings.Contains(err.Error(), "-90") {
		t.Fatalf("negative total cell: %v", err)
	}
}

func TestProjectRowContract(t *testing.T) {
	p := Project{
		ProjectID:     "proj-9f21",
		ChannelID:     "chan-1",
		Status:        ProjectActive,
		Title:         "Launch",
		DueDate:       "2024-04-01",
		AccountableID: "U9",
	}
	row := p.Row()
	if len(row) != len(ProjectColumns) {
		t.Fatalf("row has %d cells, want %d", len(row), len(ProjectColumns))
	}
	back, err := ProjectFromRow(row)
	if err != nil {
		t.Fatalf("ProjectFromRow: %v", err)
	}
	if back != p {
		t.Fatalf("decoded project does not match: %+v", back)
	}
}
