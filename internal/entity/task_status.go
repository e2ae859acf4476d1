package entity

// TaskStatus is the lifecycle state of a scrape task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusEnriching TaskStatus = "enriching"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

func (s TaskStatus) String() string { return string(s) }

// IsTerminal reports whether no transition may leave s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// IsKnown reports whether s is one of the defined lifecycle states.
func (s TaskStatus) IsKnown() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusEnriching, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Rank orders states along the lifecycle. Both terminal states share the
// highest rank; a valid transition never lowers it.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusRunning:
		return 1
	case TaskStatusEnriching:
		return 2
	case TaskStatusCompleted, TaskStatusFailed:
		return 3
	default:
		return -1
	}
}

// ParseTaskStatus converts a stored or wire value into a TaskStatus.
// Upper-case names are accepted as well.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch s {
	case "pending", "PENDING":
		return TaskStatusPending, true
	case "running", "RUNNING":
		return TaskStatusRunning, true
	case "enriching", "ENRICHING":
		return TaskStatusEnriching, true
	case "completed", "COMPLETED":
		return TaskStatusCompleted, true
	case "failed", "FAILED":
		return TaskStatusFailed, true
	default:
		return "", false
	}
}
