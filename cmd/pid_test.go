package cmd

import (
	"os"
	"strconv"
	"testing"
	"time"
)

func TestPIDFile(t *testing.T) {
	tempDir := t.TempDir()

	// Override home directory
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	defer os.Setenv("HOME", originalHome)

	t.Run("WritePIDFile", func(t *testing.T) {
		if err := WritePIDFile(); err != nil {
			t.Fatal(err)
		}

		data, err := os.ReadFile(GetPIDFilePath())
		if err != nil {
			t.Fatal(err)
		}

		expectedPID := strconv.Itoa(os.Getpid())
		if string(data) != expectedPID {
			t.Fatalf("expected PID %s, got %s", expectedPID, string(data))
		}
	})

	t.Run("ReadPIDFile", func(t *testing.T) {
		if err := WritePIDFile(); err != nil {
			t.Fatal(err)
		}

		pid, err := ReadPIDFile()
		if err != nil {
			t.Fatal(err)
		}
		if pid != os.Getpid() {
			t.Fatalf("expected PID %d, got %d", os.Getpid(), pid)
		}
	})

	t.Run("RemovePIDFile", func(t *testing.T) {
		if err := WritePIDFile(); err != nil {
			t.Fatal(err)
		}
		if err := RemovePIDFile(); err != nil {
			t.Fatal(err)
		}

		if _, err := os.Stat(GetPIDFilePath()); !os.IsNotExist(err) {
			t.Fatal("PID file should be removed")
		}
	})

	t.Run("ReadPIDFileNotExist", func(t *testing.T) {
		os.Remove(GetPIDFilePath())

		if _, err := ReadPIDFile(); err == nil {
			t.Fatal("expected error when PID file doesn't exist")
		}
	})

	t.Run("IsProcessRunning", func(t *testing.T) {
		if !IsProcessRunning(os.Getpid()) {
			t.Fatal("current process should be running")
		}
	})
}

func TestTaskInfo(t *testing.T) {
	tempDir := t.TempDir()

	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	defer os.Setenv("HOME", originalHome)

	config := &Config{
		Table:     "MYDB.PUBLIC.ORDERS",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
		GroupBy:   "day",
	}

	t.Run("WriteAndReadTaskInfo", func(t *testing.T) {
		info := newTaskInfo(config)
		info.TotalItems = 31
		info.CompletedItems = 10
		info.Progress = 10.0 / 31.0

		if err := WriteTaskInfo(info); err != nil {
			t.Fatal(err)
		}

		read, err := ReadTaskInfo()
		if err != nil {
			t.Fatal(err)
		}

		if read.PID != os.Getpid() {
			t.Fatalf("expected PID %d, got %d", os.Getpid(), read.PID)
		}
		if read.Table != config.Table {
			t.Fatalf("expected table %q, got %q", config.Table, read.Table)
		}
		if read.GroupBy != "day" {
			t.Fatalf("expected group_by day, got %q", read.GroupBy)
		}
		if read.TotalItems != 31 || read.CompletedItems != 10 {
			t.Fatalf("unexpected progress counts: %d/%d", read.CompletedItems, read.TotalItems)
		}
		if read.LastUpdate.IsZero() {
			t.Fatal("last update should be stamped on write")
		}
	})

	t.Run("RemoveTaskFile", func(t *testing.T) {
		if err := WriteTaskInfo(newTaskInfo(config)); err != nil {
			t.Fatal(err)
		}
		if err := RemoveTaskFile(); err != nil {
			t.Fatal(err)
		}

		if _, err := ReadTaskInfo(); err == nil {
			t.Fatal("expected error after task file removal")
		}
	})
}

// The task file must keep advancing while a run is in flight so that
// a second shell can watch progress with nothing but cat.
func TestTaskObserverAdvancesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config := &Config{
		Table:     "MYDB.PUBLIC.ORDERS",
		StartDate: "1995-01-01",
		EndDate:   "1995-01-03",
		GroupBy:   "day",
	}
	observer := newTaskObserver(newTaskInfo(config), nopObserver{})

	observer.RunStarted(3)
	info, err := ReadTaskInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.TotalItems != 3 || info.CompletedItems != 0 {
		t.Fatalf("expected 0/3 after run start, got %d/%d", info.CompletedItems, info.TotalItems)
	}

	interval := DateInterval{Start: day(1995, time.January, 1), End: day(1995, time.January, 2)}
	observer.UnitStarted(interval)
	info, err = ReadTaskInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.CurrentInterval != "1995-01-01" {
		t.Fatalf("expected current interval 1995-01-01, got %q", info.CurrentInterval)
	}

	observer.UnitCompleted(UnitOutcome{Interval: interval}, 1, 3)
	observer.UnitCompleted(UnitOutcome{Interval: interval}, 2, 3)
	info, err = ReadTaskInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.CompletedItems != 2 {
		t.Fatalf("expected 2 completed items, got %d", info.CompletedItems)
	}
	if info.Progress <= 50 || info.Progress >= 100 {
		t.Fatalf("expected progress between 50 and 100, got %f", info.Progress)
	}
	if info.LastUpdate.IsZero() {
		t.Fatal("last update should be stamped on every write")
	}

	observer.RunFinished(nil)
	info, err = ReadTaskInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.CurrentInterval != "" {
		t.Fatalf("expected current interval cleared after run, got %q", info.CurrentInterval)
	}
	if info.TotalItems != 3 {
		t.Fatalf("run totals should survive the final write, got %d", info.TotalItems)
	}
}
