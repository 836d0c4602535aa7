// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"lending-workers/internal/common/config"
)

// JobHandler is implemented by every worker handler in internal/workers.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Worker wraps a Zeebe job subscription for one task type.
type Worker struct {
	worker   worker.JobWorker
	logger   *zap.Logger
	taskType string
}

// NewWorker opens a job subscription for taskType and dispatches jobs to the
// handler. Completion and failure commands are the handler's responsibility.
func NewWorker(
	client zbc.Client,
	taskType string,
	cfg config.WorkerConfig,
	handler JobHandler,
	logger *zap.Logger,
) *Worker {
	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(func(client worker.JobClient, job entities.Job) {
			handler.Handle(client, job)
		}).
		MaxJobsActive(cfg.MaxJobsActive).
		Timeout(time.Duration(cfg.Timeout) * time.Millisecond).
		Open()

	logger.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", cfg.MaxJobsActive))

	return &Worker{
		worker:   jobWorker,
		logger:   logger,
		taskType: taskType,
	}
}

// Stop closes the job subscription and drains in-flight jobs.
func (w *Worker) Stop(_ context.Context) {
	w.logger.Info("stopping worker", zap.String("taskType", w.taskType))
	w.worker.Close()
}
