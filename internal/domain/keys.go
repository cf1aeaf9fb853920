package domain

import "fmt"

const WorkflowRecordPrefix = "workflow:record:"

// WorkflowRecordKey builds the canonical key for a persisted workflow record
func WorkflowRecordKey(name string) string {
	return fmt.Sprintf("%s%s", WorkflowRecordPrefix, name)
}
