package ports

// ProgressMonitor reports the progress of one blocking wait.
type ProgressMonitor interface {
	Begin(task string, total int)
	Worked(done int)
	Done()
}

// Notifier surfaces warnings to the person driving the workflow.
type Notifier interface {
	Warn(title, message string)
}
