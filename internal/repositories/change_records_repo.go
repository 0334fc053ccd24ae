package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"adpilot/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is the subset of pgxpool.Pool the repositories use. pgxmock
// satisfies it too, which is what the repository tests run against.
type Database interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ChangeRecordsRepository is the audit store: an append-mostly log of every
// executed change. No other component writes change history anywhere else.
//
// Two access patterns drive the indexes:
//	(customer_id, entity_id, entity_type, executed_at)  -- cooldown lookups
//	(customer_id, campaign_id, lever, change_date)      -- one-lever and rate limits
type ChangeRecordsRepository interface {
	Create(ctx context.Context, rec *models.ChangeRecord) error
	GetByID(ctx context.Context, customerID string, id uuid.UUID) (*models.ChangeRecord, error)
	List(ctx context.Context, customerID string, filters *models.ChangeRecordFilters) ([]*models.ChangeRecord, error)

	// LatestForEntityLever returns the most recent change for an entity and
	// lever executed at or after since, or nil when there is none.
	LatestForEntityLever(ctx context.Context, customerID, entityID string, entityType models.EntityType, lever models.Lever, since time.Time) (*models.ChangeRecord, error)

	// LatestForCampaignLever is the campaign-scoped variant used by the
	// one-lever-at-a-time and anti-oscillation checks.
	LatestForCampaignLever(ctx context.Context, customerID, campaignID string, lever models.Lever, since time.Time) (*models.ChangeRecord, error)

	// CountActionsForDay counts executions of an action type on a campaign
	// (and ad group, when given) for one calendar day.
	CountActionsForDay(ctx context.Context, customerID, campaignID, adGroupID, actionType string, day time.Time) (int, error)

	// ListForMonitoring returns still-active changes executed before the
	// cutoff, oldest first so long-waiting changes are evaluated first.
	ListForMonitoring(ctx context.Context, customerID string, executedBefore time.Time) ([]*models.ChangeRecord, error)

	// MarkRolledBack appends the reversal record and flips the original to
	// rolled_back in a single transaction.
	MarkRolledBack(ctx context.Context, originalID uuid.UUID, reversal *models.ChangeRecord, reason string, at time.Time) error

	// MarkConfirmedGood closes the monitoring loop for a change that did
	// not regress.
	MarkConfirmedGood(ctx context.Context, customerID string, id uuid.UUID, at time.Time) error

	// MarkMonitoring flags a change as under evaluation.
	MarkMonitoring(ctx context.Context, customerID string, id uuid.UUID) error

	Summary(ctx context.Context, customerID string, startDate, endDate time.Time) (*models.ChangeSummary, error)

	// FindInconsistent scans for rollback-linkage states that should be
	// impossible. It reports; it never repairs.
	FindInconsistent(ctx context.Context, customerID string) ([]models.Inconsistency, error)
}

type changeRecordsRepo struct {
	db Database
}

func NewChangeRecordsRepo(db Database) ChangeRecordsRepository {
	return &changeRecordsRepo{db: db}
}

const changeRecordColumns = `id, customer_id, entity_type, entity_id, campaign_id, ad_group_id, lever, action_type,
		old_value, new_value, change_pct, rule_id, risk_tier, bid_strategy, approved_by, change_date, executed_at, metadata,
		rollback_status, rollback_id, rollback_reason, rollback_executed_at, monitoring_completed_at, created_at`

func (r *changeRecordsRepo) Create(ctx context.Context, rec *models.ChangeRecord) error {
	if rec.CustomerID == "" {
		return models.NewValidationError("customer_id", "is required")
	}
	if rec.EntityID == "" {
		return models.NewValidationError("entity_id", "is required")
	}
	if rec.EntityType == "" {
		return models.NewValidationError("entity_type", "is required")
	}
	if rec.CampaignID == "" {
		return models.NewValidationError("campaign_id", "is required")
	}
	if rec.Lever == "" {
		return models.NewValidationError("lever", "is required")
	}
	if rec.ActionType == "" {
		return models.NewValidationError("action_type", "is required")
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = now
	}
	if rec.ChangeDate.IsZero() {
		rec.ChangeDate = rec.ExecutedAt.Truncate(24 * time.Hour)
	}
	rec.CreatedAt = now

	metadataBytes, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO change_records (` + changeRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err = r.db.Exec(ctx, query,
		rec.ID,
		rec.CustomerID,
		rec.EntityType,
		rec.EntityID,
		rec.CampaignID,
		rec.AdGroupID,
		rec.Lever,
		rec.ActionType,
		rec.OldValue,
		rec.NewValue,
		rec.ChangePct,
		rec.RuleID,
		rec.RiskTier,
		rec.BidStrategy,
		rec.ApprovedBy,
		rec.ChangeDate,
		rec.ExecutedAt,
		metadataBytes,
		rec.RollbackStatus,
		rec.RollbackID,
		rec.RollbackReason,
		rec.RollbackExecutedAt,
		rec.MonitoringCompletedAt,
		rec.CreatedAt,
	)
	if err != nil {
		return &models.PersistenceError{Operation: "append", Err: err}
	}
	return nil
}

func (r *changeRecordsRepo) GetByID(ctx context.Context, customerID string, id uuid.UUID) (*models.ChangeRecord, error) {
	query := `
		SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE customer_id = $1 AND id = $2
	`
	rec, err := scanChangeRecord(r.db.QueryRow(ctx, query, customerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &models.PersistenceError{Operation: "get", Err: err}
	}
	return rec, nil
}

func (r *changeRecordsRepo) List(ctx context.Context, customerID string, filters *models.ChangeRecordFilters) ([]*models.ChangeRecord, error) {
	if filters == nil {
		filters = &models.ChangeRecordFilters{}
	}

	query := `
		SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE customer_id = $1
	`

	args := []interface{}{customerID}
	argIdx := 1

	if filters.EntityType != nil {
		argIdx++
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, *filters.EntityType)
	}
	if filters.EntityID != nil {
		argIdx++
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, *filters.EntityID)
	}
	if filters.CampaignID != nil {
		argIdx++
		query += fmt.Sprintf(" AND campaign_id = $%d", argIdx)
		args = append(args, *filters.CampaignID)
	}
	if filters.Lever != nil {
		argIdx++
		query += fmt.Sprintf(" AND lever = $%d", argIdx)
		args = append(args, *filters.Lever)
	}
	if filters.ActionType != nil {
		argIdx++
		query += fmt.Sprintf(" AND action_type = $%d", argIdx)
		args = append(args, *filters.ActionType)
	}
	if filters.RuleID != nil {
		argIdx++
		query += fmt.Sprintf(" AND rule_id = $%d", argIdx)
		args = append(args, *filters.RuleID)
	}
	if filters.Status != nil {
		argIdx++
		query += fmt.Sprintf(" AND rollback_status = $%d", argIdx)
		args = append(args, *filters.Status)
	}
	if filters.StartDate != nil {
		argIdx++
		query += fmt.Sprintf(" AND executed_at >= $%d", argIdx)
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		argIdx++
		query += fmt.Sprintf(" AND executed_at <= $%d", argIdx)
		args = append(args, *filters.EndDate)
	}

	query += " ORDER BY executed_at DESC"

	if filters.Limit > 0 {
		argIdx++
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			argIdx++
			query += fmt.Sprintf(" OFFSET $%d", argIdx)
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &models.PersistenceError{Operation: "list", Err: err}
	}
	defer rows.Close()

	return collectChangeRecords(rows)
}

func (r *changeRecordsRepo) LatestForEntityLever(ctx context.Context, customerID, entityID string, entityType models.EntityType, lever models.Lever, since time.Time) (*models.ChangeRecord, error) {
	query := `
		SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE customer_id = $1 AND entity_id = $2 AND entity_type = $3 AND lever = $4 AND executed_at >= $5
		ORDER BY executed_at DESC
		LIMIT 1
	`
	rec, err := scanChangeRecord(r.db.QueryRow(ctx, query, customerID, entityID, entityType, lever, since))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &models.PersistenceError{Operation: "latest_for_entity_lever", Err: err}
	}
	return rec, nil
}

func (r *changeRecordsRepo) LatestForCampaignLever(ctx context.Context, customerID, campaignID string, lever models.Lever, since time.Time) (*models.ChangeRecord, error) {
	query := `
		SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE customer_id = $1 AND campaign_id = $2 AND lever = $3 AND executed_at >= $4
		ORDER BY executed_at DESC
		LIMIT 1
	`
	rec, err := scanChangeRecord(r.db.QueryRow(ctx, query, customerID, campaignID, lever, since))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &models.PersistenceError{Operation: "latest_for_campaign_lever", Err: err}
	}
	return rec, nil
}

func (r *changeRecordsRepo) CountActionsForDay(ctx context.Context, customerID, campaignID, adGroupID, actionType string, day time.Time) (int, error) {
	dayStart := day.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT COUNT(*)
		FROM change_records
		WHERE customer_id = $1 AND campaign_id = $2 AND action_type = $3 AND executed_at >= $4 AND executed_at < $5
	`
	args := []interface{}{customerID, campaignID, actionType, dayStart, dayEnd}
	if adGroupID != "" {
		query += " AND ad_group_id = $6"
		args = append(args, adGroupID)
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, &models.PersistenceError{Operation: "count_actions_for_day", Err: err}
	}
	return count, nil
}

func (r *changeRecordsRepo) ListForMonitoring(ctx context.Context, customerID string, executedBefore time.Time) ([]*models.ChangeRecord, error) {
	query := `
		SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE customer_id = $1
		  AND rollback_status IN ('', 'monitoring')
		  AND rule_id <> $2
		  AND executed_at < $3
		ORDER BY executed_at ASC
	`
	rows, err := r.db.Query(ctx, query, customerID, models.RuleIDRollback, executedBefore)
	if err != nil {
		return nil, &models.PersistenceError{Operation: "list_for_monitoring", Err: err}
	}
	defer rows.Close()

	return collectChangeRecords(rows)
}

func (r *changeRecordsRepo) MarkRolledBack(ctx context.Context, originalID uuid.UUID, reversal *models.ChangeRecord, reason string, at time.Time) error {
	if reversal.ID == uuid.Nil {
		reversal.ID = uuid.New()
	}
	now := time.Now().UTC()
	if reversal.ExecutedAt.IsZero() {
		reversal.ExecutedAt = at
	}
	if reversal.ChangeDate.IsZero() {
		reversal.ChangeDate = reversal.ExecutedAt.Truncate(24 * time.Hour)
	}
	reversal.CreatedAt = now

	metadataBytes, err := marshalMetadata(reversal.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return &models.PersistenceError{Operation: "mark_rolled_back_begin", Err: err}
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO change_records (` + changeRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`
	_, err = tx.Exec(ctx, insertQuery,
		reversal.ID,
		reversal.CustomerID,
		reversal.EntityType,
		reversal.EntityID,
		reversal.CampaignID,
		reversal.AdGroupID,
		reversal.Lever,
		reversal.ActionType,
		reversal.OldValue,
		reversal.NewValue,
		reversal.ChangePct,
		reversal.RuleID,
		reversal.RiskTier,
		reversal.BidStrategy,
		reversal.ApprovedBy,
		reversal.ChangeDate,
		reversal.ExecutedAt,
		metadataBytes,
		reversal.RollbackStatus,
		reversal.RollbackID,
		reversal.RollbackReason,
		reversal.RollbackExecutedAt,
		reversal.MonitoringCompletedAt,
		reversal.CreatedAt,
	)
	if err != nil {
		return &models.PersistenceError{Operation: "mark_rolled_back_insert", Err: err}
	}

	// The status guard makes the lifecycle transition set-once: a record
	// already rolled back or confirmed good is never flipped again.
	updateQuery := `
		UPDATE change_records
		SET rollback_status = $1, rollback_id = $2, rollback_reason = $3, rollback_executed_at = $4, monitoring_completed_at = $4
		WHERE id = $5 AND customer_id = $6 AND rollback_status IN ('', 'monitoring')
	`
	tag, err := tx.Exec(ctx, updateQuery,
		models.RollbackStatusRolledBack,
		reversal.ID,
		reason,
		at,
		originalID,
		reversal.CustomerID,
	)
	if err != nil {
		return &models.PersistenceError{Operation: "mark_rolled_back_update", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("change %s is not eligible for rollback (already resolved or missing)", originalID)
	}

	if err := tx.Commit(ctx); err != nil {
		return &models.PersistenceError{Operation: "mark_rolled_back_commit", Err: err}
	}
	return nil
}

func (r *changeRecordsRepo) MarkConfirmedGood(ctx context.Context, customerID string, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE change_records
		SET rollback_status = $1, monitoring_completed_at = $2
		WHERE customer_id = $3 AND id = $4 AND rollback_status IN ('', 'monitoring')
	`
	tag, err := r.db.Exec(ctx, query, models.RollbackStatusConfirmedGood, at, customerID, id)
	if err != nil {
		return &models.PersistenceError{Operation: "mark_confirmed_good", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("change %s is not eligible for confirmation (already resolved or missing)", id)
	}
	return nil
}

func (r *changeRecordsRepo) MarkMonitoring(ctx context.Context, customerID string, id uuid.UUID) error {
	query := `
		UPDATE change_records
		SET rollback_status = $1
		WHERE customer_id = $2 AND id = $3 AND rollback_status = ''
	`
	if _, err := r.db.Exec(ctx, query, models.RollbackStatusMonitoring, customerID, id); err != nil {
		return &models.PersistenceError{Operation: "mark_monitoring", Err: err}
	}
	return nil
}

func (r *changeRecordsRepo) Summary(ctx context.Context, customerID string, startDate, endDate time.Time) (*models.ChangeSummary, error) {
	summary := &models.ChangeSummary{
		CustomerID:      customerID,
		LeverBreakdown:  make(map[string]int),
		ActionBreakdown: make(map[string]int),
		StatusBreakdown: make(map[string]int),
		PeriodStart:     startDate,
		PeriodEnd:       endDate,
	}

	totalQuery := `SELECT COUNT(*) FROM change_records WHERE customer_id = $1 AND executed_at BETWEEN $2 AND $3`
	if err := r.db.QueryRow(ctx, totalQuery, customerID, startDate, endDate).Scan(&summary.TotalChanges); err != nil {
		return nil, &models.PersistenceError{Operation: "summary_total", Err: err}
	}

	leverQuery := `
		SELECT lever, COUNT(*)
		FROM change_records
		WHERE customer_id = $1 AND executed_at BETWEEN $2 AND $3
		GROUP BY lever
	`
	if err := r.scanBreakdown(ctx, leverQuery, customerID, startDate, endDate, summary.LeverBreakdown); err != nil {
		return nil, err
	}

	actionQuery := `
		SELECT action_type, COUNT(*)
		FROM change_records
		WHERE customer_id = $1 AND executed_at BETWEEN $2 AND $3
		GROUP BY action_type
	`
	if err := r.scanBreakdown(ctx, actionQuery, customerID, startDate, endDate, summary.ActionBreakdown); err != nil {
		return nil, err
	}

	statusQuery := `
		SELECT COALESCE(NULLIF(rollback_status, ''), 'active'), COUNT(*)
		FROM change_records
		WHERE customer_id = $1 AND executed_at BETWEEN $2 AND $3
		GROUP BY rollback_status
	`
	if err := r.scanBreakdown(ctx, statusQuery, customerID, startDate, endDate, summary.StatusBreakdown); err != nil {
		return nil, err
	}

	return summary, nil
}

func (r *changeRecordsRepo) scanBreakdown(ctx context.Context, query, customerID string, startDate, endDate time.Time, dst map[string]int) error {
	rows, err := r.db.Query(ctx, query, customerID, startDate, endDate)
	if err != nil {
		return &models.PersistenceError{Operation: "summary_breakdown", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return &models.PersistenceError{Operation: "summary_breakdown", Err: err}
		}
		dst[key] = count
	}
	return rows.Err()
}

func (r *changeRecordsRepo) FindInconsistent(ctx context.Context, customerID string) ([]models.Inconsistency, error) {
	var found []models.Inconsistency

	missingQuery := `
		SELECT id FROM change_records
		WHERE customer_id = $1 AND rollback_status = $2 AND rollback_id IS NULL
	`
	if err := r.collectInconsistencies(ctx, missingQuery, customerID, models.InconsistencyMissingRollbackID,
		"marked rolled_back but rollback_id is not set", &found, models.RollbackStatusRolledBack); err != nil {
		return nil, err
	}

	danglingQuery := `
		SELECT c.id FROM change_records c
		WHERE c.customer_id = $1 AND c.rollback_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM change_records r WHERE r.id = c.rollback_id)
	`
	if err := r.collectInconsistencies(ctx, danglingQuery, customerID, models.InconsistencyDanglingRollbackID,
		"rollback_id points at a record that does not exist", &found); err != nil {
		return nil, err
	}

	orphanQuery := `
		SELECT c.id FROM change_records c
		WHERE c.customer_id = $1 AND c.rule_id = $2
		  AND NOT EXISTS (SELECT 1 FROM change_records o WHERE o.rollback_id = c.id)
	`
	if err := r.collectInconsistencies(ctx, orphanQuery, customerID, models.InconsistencyOrphanedRollback,
		"rollback record has no original pointing at it", &found, models.RuleIDRollback); err != nil {
		return nil, err
	}

	return found, nil
}

func (r *changeRecordsRepo) collectInconsistencies(ctx context.Context, query, customerID string, kind models.InconsistencyKind, detail string, dst *[]models.Inconsistency, extraArgs ...interface{}) error {
	args := append([]interface{}{customerID}, extraArgs...)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return &models.PersistenceError{Operation: "find_inconsistent", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return &models.PersistenceError{Operation: "find_inconsistent", Err: err}
		}
		*dst = append(*dst, models.Inconsistency{
			ChangeID:   id,
			CustomerID: customerID,
			Kind:       kind,
			Detail:     detail,
		})
	}
	return rows.Err()
}

func marshalMetadata(metadata models.JSONB) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

func scanChangeRecord(row pgx.Row) (*models.ChangeRecord, error) {
	rec := &models.ChangeRecord{}
	var metadataBytes []byte

	err := row.Scan(
		&rec.ID,
		&rec.CustomerID,
		&rec.EntityType,
		&rec.EntityID,
		&rec.CampaignID,
		&rec.AdGroupID,
		&rec.Lever,
		&rec.ActionType,
		&rec.OldValue,
		&rec.NewValue,
		&rec.ChangePct,
		&rec.RuleID,
		&rec.RiskTier,
		&rec.BidStrategy,
		&rec.ApprovedBy,
		&rec.ChangeDate,
		&rec.ExecutedAt,
		&metadataBytes,
		&rec.RollbackStatus,
		&rec.RollbackID,
		&rec.RollbackReason,
		&rec.RollbackExecutedAt,
		&rec.MonitoringCompletedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return rec, nil
}

func collectChangeRecords(rows pgx.Rows) ([]*models.ChangeRecord, error) {
	var records []*models.ChangeRecord
	for rows.Next() {
		rec, err := scanChangeRecord(rows)
		if err != nil {
			return nil, &models.PersistenceError{Operation: "scan", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.PersistenceError{Operation: "scan", Err: err}
	}
	return records, nil
}
