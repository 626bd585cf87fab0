package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func newTestProgressModel() progressModel {
	return newProgressModel(&Config{
		Table:   "MYDB.PUBLIC.ORDERS",
		Workers: 4,
	})
}

func TestProgressModelRunStarted(t *testing.T) {
	model := newTestProgressModel()

	updated, _ := model.Update(runStartedMsg{total: 7})
	m, ok := updated.(progressModel)
	if !ok {
		t.Fatal("Update should return a progressModel")
	}

	if m.phase != phaseExporting {
		t.Fatalf("expected exporting phase, got %d", m.phase)
	}
	if m.total != 7 {
		t.Fatalf("expected total 7, got %d", m.total)
	}
	if len(m.messages) != 1 {
		t.Fatalf("expected a startup log line, got %d messages", len(m.messages))
	}
}

func TestProgressModelUnitLifecycle(t *testing.T) {
	model := newTestProgressModel()

	updated, _ := model.Update(runStartedMsg{total: 2})
	m := updated.(progressModel)

	interval := DateInterval{Start: day(2024, 1, 1), End: day(2024, 1, 2)}
	updated, _ = m.Update(unitStartedMsg{interval: interval})
	m = updated.(progressModel)

	if len(m.inFlight) != 1 {
		t.Fatalf("expected 1 in-flight interval, got %d", len(m.inFlight))
	}

	outcome := UnitOutcome{
		Interval: interval,
		RowCount: 42,
		Artifact: &ExportArtifact{Name: "orders_2024_01_01.csv", Bytes: []byte("data")},
	}
	updated, _ = m.Update(unitCompletedMsg{outcome: outcome, completed: 1, total: 2})
	m = updated.(progressModel)

	if m.completed != 1 {
		t.Fatalf("expected completed 1, got %d", m.completed)
	}
	if len(m.inFlight) != 0 {
		t.Fatalf("completed interval should leave in-flight set, got %d", len(m.inFlight))
	}
	if len(m.recent) != 1 {
		t.Fatalf("expected 1 recent result, got %d", len(m.recent))
	}

	view := m.View()
	if !strings.Contains(view, "orders_2024_01_01.csv") {
		t.Fatal("view should show the completed artifact name")
	}
	if !strings.Contains(view, "1/2 intervals") {
		t.Fatal("view should show overall interval progress")
	}
}

func TestProgressModelFailedUnitInView(t *testing.T) {
	model := newTestProgressModel()

	updated, _ := model.Update(runStartedMsg{total: 1})
	m := updated.(progressModel)

	interval := DateInterval{Start: day(2024, 1, 1), End: day(2024, 1, 2)}
	outcome := UnitOutcome{Interval: interval, Err: errors.New("warehouse suspended")}
	updated, _ = m.Update(unitCompletedMsg{outcome: outcome, completed: 1, total: 1})
	m = updated.(progressModel)

	view := m.View()
	if !strings.Contains(view, "warehouse suspended") {
		t.Fatal("view should show the unit failure")
	}
}

func TestProgressModelMessageLogTrimmed(t *testing.T) {
	model := newTestProgressModel()

	var current tea.Model = model
	for i := 0; i < 15; i++ {
		current, _ = current.(progressModel).Update(logLineMsg("line"))
	}

	m := current.(progressModel)
	if len(m.messages) != 10 {
		t.Fatalf("message log should keep the last 10 lines, got %d", len(m.messages))
	}
}

// blockingExecutor parks every query until its context is cancelled
type blockingExecutor struct{}

func (blockingExecutor) Execute(ctx context.Context, _ string) (*ResultSet, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQuitKeyCancelsRun(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config := newTestConfig()
	config.StartDate = "1995-01-01"
	config.EndDate = "1995-01-03"
	config.OutputDir = filepath.Join(t.TempDir(), "out")

	exporter := NewExporter(config, newTestLogger())
	exporter.exec = blockingExecutor{}

	done := make(chan error, 1)
	go func() {
		done <- runWithTUI(context.Background(), exporter, config, newTaskInfo(config),
			tea.WithInput(strings.NewReader("q")),
			tea.WithoutRenderer(),
		)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled after quit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("quitting the display should cancel the export")
	}
}
