package jobs

import (
	"context"
	"log"
	"sync"

	"adpilot/internal/events"
	"adpilot/internal/models"
	"adpilot/internal/repositories"
	"adpilot/internal/services"
)

// RollbackMonitorJob is the periodic control-loop pass: for every active
// customer, find changes past their minimum wait, compare before/after
// performance and reverse the ones that regressed.
//
// Customers run concurrently (each customer's scan is independent and
// read-only against the metrics collaborator) but changes within one
// customer run in order, since sibling guardrail state is shared.
type RollbackMonitorJob struct {
	settingsRepo repositories.CustomerSettingsRepository
	monitor      services.ChangeMonitor
	evaluator    services.RollbackTriggerEvaluator
	rollback     services.RollbackExecutor
	publisher    events.Publisher

	// DryRun evaluates and publishes decisions without touching the ads
	// platform or the audit log.
	DryRun bool
}

func NewRollbackMonitorJob(
	settingsRepo repositories.CustomerSettingsRepository,
	monitor services.ChangeMonitor,
	evaluator services.RollbackTriggerEvaluator,
	rollback services.RollbackExecutor,
	publisher events.Publisher,
) *RollbackMonitorJob {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &RollbackMonitorJob{
		settingsRepo: settingsRepo,
		monitor:      monitor,
		evaluator:    evaluator,
		rollback:     rollback,
		publisher:    publisher,
	}
}

// Run executes one monitoring pass across all active customers.
func (j *RollbackMonitorJob) Run(ctx context.Context) error {
	customers, err := j.settingsRepo.ListActive(ctx, 1000, 0)
	if err != nil {
		log.Printf("Failed to list customers for rollback monitoring: %v", err)
		return err
	}

	semaphore := make(chan struct{}, 5)
	var wg sync.WaitGroup

	for _, customer := range customers {
		wg.Add(1)
		go func(settings *models.CustomerSettings) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			j.processCustomer(ctx, settings)
		}(customer)
	}
	wg.Wait()

	log.Printf("Rollback monitoring pass completed for %d customers", len(customers))
	return nil
}

func (j *RollbackMonitorJob) processCustomer(ctx context.Context, settings *models.CustomerSettings) {
	changes, err := j.monitor.ChangesToMonitor(ctx, settings.CustomerID)
	if err != nil {
		log.Printf("Failed to list changes to monitor for customer %s: %v", settings.CustomerID, err)
		return
	}

	profile := settings.KPIProfile
	if profile == "" {
		profile = models.KPIProfileROAS
	}

	for _, change := range changes {
		// Per-item isolation: one bad change never aborts its siblings.
		if err := j.evaluateChange(ctx, change, profile); err != nil {
			log.Printf("Failed to evaluate change %s for customer %s: %v", change.ID, settings.CustomerID, err)
		}
	}
}

func (j *RollbackMonitorJob) evaluateChange(ctx context.Context, change *models.ChangeRecord, profile models.KPIProfile) error {
	baseline, err := j.monitor.Baseline(ctx, change)
	if err != nil {
		// Metrics timeout or outage: insufficient data, retried next run.
		return err
	}

	var delta *models.PerformanceDelta
	if baseline != nil {
		current, err := j.monitor.Current(ctx, change)
		if err != nil {
			return err
		}
		delta = j.monitor.Delta(baseline, current)
	}

	decision, err := j.evaluator.Decide(ctx, change, delta, profile)
	if err != nil {
		return err
	}

	switch {
	case decision.ShouldRollback:
		j.publisher.PublishRollbackDecision(ctx, change.CustomerID, change.ID, decision)
		return j.performRollback(ctx, change, decision)

	case decision.Trigger == models.TriggerNone:
		// The full window closed without a regression; close the loop so
		// the change is never re-evaluated.
		if j.DryRun {
			log.Printf("[dry-run] Would confirm change %s good", change.ID)
			return nil
		}
		return j.rollback.MarkConfirmedGood(ctx, change.CustomerID, change.ID)

	case decision.Trigger == models.TriggerAntiOscillationBlock:
		// Surfaced explicitly, left active. The block expires with the
		// oscillation window and the change is re-evaluated then.
		log.Printf("Rollback of change %s blocked: %s", change.ID, decision.Reason)
		j.publisher.PublishRollbackDecision(ctx, change.CustomerID, change.ID, decision)
		return nil

	default:
		// Insufficient data: flag as monitoring and re-check next run.
		log.Printf("Change %s not evaluable yet: %s", change.ID, decision.Reason)
		if change.RollbackStatus == models.RollbackStatusActive && !j.DryRun {
			return j.monitor.MarkMonitoring(ctx, change)
		}
		return nil
	}
}

func (j *RollbackMonitorJob) performRollback(ctx context.Context, change *models.ChangeRecord, decision *models.RollbackDecision) error {
	log.Printf("Rolling back change %s (%s, confidence %.2f): %s",
		change.ID, decision.Trigger, decision.Confidence, decision.Reason)

	result, err := j.rollback.ExecuteRollback(ctx, change, decision.Reason, j.DryRun)
	if err != nil {
		return err
	}
	if !result.Success {
		log.Printf("Rollback of change %s failed: %s", change.ID, result.Error)
		return nil
	}
	if j.DryRun {
		log.Printf("[dry-run] Would roll back change %s to %v", change.ID, result.NewValue)
		return nil
	}

	reversal, err := j.rollback.LogRollback(ctx, result, decision.Reason, change)
	if err != nil {
		return err
	}
	log.Printf("Rolled back change %s; reversal recorded as %s", change.ID, reversal.ID)
	return nil
}
