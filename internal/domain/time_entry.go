package domain

// Ref is an id/name pair Harvest attaches to a time entry.
type Ref struct {
	ID   int64
	Name string
}

// TimeEntry represents a Harvest time entry in the domain.
type TimeEntry struct {
	ID           int64
	Project      Ref
	Task         Ref
	Client       Ref
	SpentDate    string  // YYYY-MM-DD in the account's local calendar
	Hours        float64 // live value, grows while the entry runs
	RoundedHours float64 // value Harvest bills, used for totals
	IsRunning    bool
}

// Matches reports whether the entry tracks the given project and task.
func (e TimeEntry) Matches(projectID, taskID int64) bool {
	return e.Project.ID == projectID && e.Task.ID == taskID
}
