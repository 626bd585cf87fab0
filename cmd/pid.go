package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// TaskInfo represents the current export task status
type TaskInfo struct {
	PID             int       `json:"pid"`
	StartTime       time.Time `json:"start_time"`
	Table           string    `json:"table"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	GroupBy         string    `json:"group_by"`
	CurrentTask     string    `json:"current_task"`
	CurrentInterval string    `json:"current_interval,omitempty"`
	Progress        float64   `json:"progress"`
	TotalItems      int       `json:"total_items"`
	CompletedItems  int       `json:"completed_items"`
	LastUpdate      time.Time `json:"last_update"`
}

// GetPIDFilePath returns the path to the PID file
func GetPIDFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".snowflake-exporter", "exporter.pid")
}

// GetTaskFilePath returns the path to the task info file
func GetTaskFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".snowflake-exporter", "current_task.json")
}

// WritePIDFile writes the current process PID to a file
func WritePIDFile() error {
	pidPath := GetPIDFilePath()
	dir := filepath.Dir(pidPath)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	pid := os.Getpid()
	return os.WriteFile(pidPath, []byte(strconv.Itoa(pid)), 0o600)
}

// RemovePIDFile removes the PID file
func RemovePIDFile() error {
	return os.Remove(GetPIDFilePath())
}

// ReadPIDFile reads the PID from file
func ReadPIDFile() (int, error) {
	data, err := os.ReadFile(GetPIDFilePath())
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

// IsProcessRunning checks if a process with given PID is running.
// Signal 0 probes for existence without delivering anything.
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// WriteTaskInfo writes current task information to file
func WriteTaskInfo(info *TaskInfo) error {
	taskPath := GetTaskFilePath()
	dir := filepath.Dir(taskPath)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	info.LastUpdate = time.Now()

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task info: %w", err)
	}

	return os.WriteFile(taskPath, data, 0o600)
}

// ReadTaskInfo reads current task information from file
func ReadTaskInfo() (*TaskInfo, error) {
	data, err := os.ReadFile(GetTaskFilePath())
	if err != nil {
		return nil, err
	}

	var info TaskInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task info: %w", err)
	}

	return &info, nil
}

// RemoveTaskFile removes the task info file
func RemoveTaskFile() error {
	return os.Remove(GetTaskFilePath())
}

// newTaskInfo seeds the task file contents for an export run
func newTaskInfo(config *Config) *TaskInfo {
	return &TaskInfo{
		PID:         os.Getpid(),
		StartTime:   time.Now(),
		Table:       config.Table,
		StartDate:   config.StartDate,
		EndDate:     config.EndDate,
		GroupBy:     config.GroupBy,
		CurrentTask: "Starting export...",
	}
}

// taskObserver keeps the on-disk task file in sync with the run so
// external tools can inspect progress while the export is underway.
// File writes are best effort; a failed write never disturbs the run.
// Every event is passed through to next.
type taskObserver struct {
	mu   sync.Mutex
	info *TaskInfo
	next ProgressObserver
}

func newTaskObserver(info *TaskInfo, next ProgressObserver) *taskObserver {
	return &taskObserver{info: info, next: next}
}

func (o *taskObserver) RunStarted(total int) {
	o.mu.Lock()
	o.info.TotalItems = total
	o.info.CompletedItems = 0
	o.info.Progress = 0
	o.info.CurrentTask = fmt.Sprintf("Exporting %d interval(s)", total)
	_ = WriteTaskInfo(o.info)
	o.mu.Unlock()

	o.next.RunStarted(total)
}

func (o *taskObserver) UnitStarted(interval DateInterval) {
	o.mu.Lock()
	o.info.CurrentInterval = interval.Start.Format(dateLayout)
	_ = WriteTaskInfo(o.info)
	o.mu.Unlock()

	o.next.UnitStarted(interval)
}

func (o *taskObserver) UnitCompleted(outcome UnitOutcome, completed, total int) {
	o.mu.Lock()
	o.info.CompletedItems = completed
	o.info.TotalItems = total
	if total > 0 {
		o.info.Progress = float64(completed) / float64(total) * 100
	}
	_ = WriteTaskInfo(o.info)
	o.mu.Unlock()

	o.next.UnitCompleted(outcome, completed, total)
}

func (o *taskObserver) RunFinished(outcomes []UnitOutcome) {
	o.mu.Lock()
	o.info.CurrentInterval = ""
	o.info.CurrentTask = "Finalizing artifacts..."
	_ = WriteTaskInfo(o.info)
	o.mu.Unlock()

	o.next.RunFinished(outcomes)
}
