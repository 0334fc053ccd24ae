package background

import (
	"context"
	"log"
	"sync"
	"time"

	"adpilot/internal/jobs"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages the periodic control-loop jobs. Both jobs run in
// singleton mode: a pass that overruns its interval is rescheduled, never
// overlapped, which keeps guardrail reads and audit writes single-writer
// per run.
type JobScheduler struct {
	scheduler      gocron.Scheduler
	monitorJob     *jobs.RollbackMonitorJob
	reconciliation *jobs.ReconciliationJob
	registeredJobs map[string]gocron.Job
	mu             sync.RWMutex
}

// NewJobScheduler creates the scheduler and registers the jobs.
func NewJobScheduler(monitorJob *jobs.RollbackMonitorJob, reconciliation *jobs.ReconciliationJob) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:      scheduler,
		monitorJob:     monitorJob,
		reconciliation: reconciliation,
		registeredJobs: make(map[string]gocron.Job),
	}

	js.registerJobs()
	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	js.mu.Lock()
	defer js.mu.Unlock()

	monitorJob, err := js.scheduler.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(js.monitorJob.Run, context.Background()),
		gocron.WithName("rollback-monitor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create rollback monitor job: %v", err)
	} else {
		js.registeredJobs["rollback-monitor"] = monitorJob
	}

	reconJob, err := js.scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(js.reconciliation.Run, context.Background()),
		gocron.WithName("audit-reconciliation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create reconciliation job: %v", err)
	} else {
		js.registeredJobs["audit-reconciliation"] = reconJob
	}

	log.Printf("Registered %d background jobs", len(js.registeredJobs))
}

// RunMonitorNow triggers an immediate monitoring pass, used by the admin
// endpoint.
func (js *JobScheduler) RunMonitorNow(ctx context.Context) error {
	return js.monitorJob.Run(ctx)
}
