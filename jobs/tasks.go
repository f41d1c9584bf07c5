// Package jobs hosts the Asynq task definitions and worker plumbing.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeIntegrityScan is the task type for the referential integrity scan.
	TaskTypeIntegrityScan = "rbac:integrity_scan"
)

// NewIntegrityScanTask constructs an Asynq task for the integrity scan.
// The scan takes no parameters; it always inspects the whole store.
func NewIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIntegrityScan, nil)
}
