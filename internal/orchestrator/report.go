package orchestrator

import (
	"time"

	"github.com/daicraft/dai/pkg/models"
)

// finalStatus determines the terminal run status from the graph state.
func (o *Orchestrator) finalStatus(aborted bool) models.RunStatus {
	if aborted {
		return models.RunStatusAborted
	}
	for _, t := range o.graph.Tasks() {
		if t.Status != models.TaskStatusSucceeded {
			return models.RunStatusPartiallyFailed
		}
	}
	return models.RunStatusCompleted
}

// buildReport snapshots every task's terminal state in declaration order.
func (o *Orchestrator) buildReport(status models.RunStatus, started, finished time.Time) *models.Report {
	tasks := o.graph.Tasks()
	report := &models.Report{
		RunID:      o.runID,
		Status:     status,
		Tasks:      make([]models.TaskReport, 0, len(tasks)),
		StartedAt:  started,
		FinishedAt: finished,
	}
	for _, t := range tasks {
		report.Tasks = append(report.Tasks, models.TaskReport{
			ID:       t.ID,
			Role:     t.Role.Name,
			Status:   t.Status,
			Result:   t.Result,
			Failure:  t.Failure,
			Attempts: t.Attempts,
		})
	}
	if o.tracker != nil {
		report.InputTokens, report.OutputTokens = o.tracker.Total()
	}
	return report
}
