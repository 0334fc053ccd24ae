package jobs

import (
	"context"
	"errors"
	"log"

	"adpilot/internal/models"
	"adpilot/internal/repositories"
	"adpilot/internal/services"
)

// ReconciliationJob periodically scans every active customer's audit log
// for rollback-linkage violations and reports them. Repair is deliberately
// an operator decision.
type ReconciliationJob struct {
	settingsRepo   repositories.CustomerSettingsRepository
	reconciliation services.ReconciliationService
}

func NewReconciliationJob(settingsRepo repositories.CustomerSettingsRepository, reconciliation services.ReconciliationService) *ReconciliationJob {
	return &ReconciliationJob{
		settingsRepo:   settingsRepo,
		reconciliation: reconciliation,
	}
}

// Run executes one reconciliation pass across all active customers.
func (j *ReconciliationJob) Run(ctx context.Context) error {
	customers, err := j.settingsRepo.ListActive(ctx, 1000, 0)
	if err != nil {
		log.Printf("Failed to list customers for reconciliation: %v", err)
		return err
	}

	total := 0
	for _, customer := range customers {
		found, err := j.reconciliation.Check(ctx, customer.CustomerID)
		if err != nil {
			var stateErr *models.InconsistentStateError
			if !errors.As(err, &stateErr) {
				log.Printf("Reconciliation check failed for customer %s: %v", customer.CustomerID, err)
				continue
			}
		}
		total += len(found)
	}

	if total > 0 {
		log.Printf("Reconciliation pass found %d inconsistencies across %d customers", total, len(customers))
	}
	return nil
}
