package model

import "testing"

func sampleTasks() []Task {
	return []Task{
		{ID: "1", Title: "Classify inbox", Description: "Sort support emails", Status: "pending"},
		{ID: "2", Title: "Weekly report", Description: "Summarize tickets", Status: "running"},
		{ID: "3", Title: "Refund triage", Description: "Check EMAIL threads", Status: "completed"},
		{ID: "4", Title: "Broken run", Description: "", Status: "error"},
	}
}

func TestFilterTasks_EmptyFilter_ReturnsAll(t *testing.T) {
	got := FilterTasks(sampleTasks(), TaskFilter{})
	if len(got) != 4 {
		t.Errorf("len = %d, want %d", len(got), 4)
	}
}

func TestFilterTasks_QueryMatchesTitleOrDescriptionCaseInsensitive(t *testing.T) {
	got := FilterTasks(sampleTasks(), TaskFilter{Query: "Email"})
	if len(got) != 2 {
		t.Fatalf("len = %d, want %d", len(got), 2)
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("ids = %s,%s, want 1,3", got[0].ID, got[1].ID)
	}
}

func TestFilterTasks_StatusFacet(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{"all", 4},
		{"ALL", 4},
		{"", 4},
		{"running", 1},
		{"Completed", 1},
		{"unknown", 0},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := FilterTasks(sampleTasks(), TaskFilter{Status: tt.status})
			if len(got) != tt.want {
				t.Errorf("FilterTasks(status=%q) len = %d, want %d", tt.status, len(got), tt.want)
			}
		})
	}
}

func TestFilterTasks_QueryAndStatusCombined(t *testing.T) {
	got := FilterTasks(sampleTasks(), TaskFilter{Query: "email", Status: "completed"})
	if len(got) != 1 || got[0].ID != "3" {
		t.Errorf("got %+v, want only task 3", got)
	}
}

func TestSummarizeTasks_CountsByStatus(t *testing.T) {
	summary := SummarizeTasks(sampleTasks())
	want := TaskSummary{Total: 4, Pending: 1, Running: 1, Completed: 1, Error: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
}

func TestIsValidTaskStatus(t *testing.T) {
	if !IsValidTaskStatus("running") {
		t.Error("running should be valid")
	}
	if IsValidTaskStatus("paused") {
		t.Error("paused should be invalid")
	}
}

func TestFilterLogs_Facets(t *testing.T) {
	logs := []LogEntry{
		{ID: "a", Task: "t-1", Type: "AI_RUN", Status: "SUCCESS", Details: "processed 45 emails", User: "System"},
		{ID: "b", Task: "t-2", Type: "SYSTEM", Status: "ERROR", Details: "timeout", User: "ann"},
		{ID: "c", Task: "t-3", Type: "AI_RUN", Status: "ERROR", Details: "quota", User: "System"},
	}

	if got := FilterLogs(logs, LogFilter{Type: "ai_run"}); len(got) != 2 {
		t.Errorf("type facet len = %d, want 2", len(got))
	}
	if got := FilterLogs(logs, LogFilter{Status: "error", Type: "ai_run"}); len(got) != 1 || got[0].ID != "c" {
		t.Errorf("status+type facet = %+v, want only c", got)
	}
	if got := FilterLogs(logs, LogFilter{Query: "ANN"}); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("query on user = %+v, want only b", got)
	}
	if got := FilterLogs(logs, LogFilter{Query: "emails"}); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("query on details = %+v, want only a", got)
	}
}
