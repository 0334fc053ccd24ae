package services

import (
	"context"
	"log"

	"adpilot/internal/models"
	"adpilot/internal/repositories"
)

// ReconciliationService periodically checks the audit log for rollback
// linkage states that should be impossible (an original marked rolled_back
// without a reversal, or the reverse). A crash between the rollback
// append and the original's status update would produce one; the scan
// reports it for an operator, it never repairs.
type ReconciliationService interface {
	// Check returns the inconsistencies for one customer, and an
	// InconsistentStateError when any were found.
	Check(ctx context.Context, customerID string) ([]models.Inconsistency, error)
}

type reconciliationService struct {
	changesRepo repositories.ChangeRecordsRepository
}

func NewReconciliationService(changesRepo repositories.ChangeRecordsRepository) ReconciliationService {
	return &reconciliationService{changesRepo: changesRepo}
}

func (s *reconciliationService) Check(ctx context.Context, customerID string) ([]models.Inconsistency, error) {
	found, err := s.changesRepo.FindInconsistent(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}

	for _, inc := range found {
		log.Printf("Audit inconsistency for customer %s: change %s: %s (%s)",
			customerID, inc.ChangeID, inc.Detail, inc.Kind)
	}
	return found, &models.InconsistentStateError{Inconsistencies: found}
}
