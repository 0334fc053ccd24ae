package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"adpilot/internal/models"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

var changeRecordRowColumns = []string{
	"id", "customer_id", "entity_type", "entity_id", "campaign_id", "ad_group_id", "lever", "action_type",
	"old_value", "new_value", "change_pct", "rule_id", "risk_tier", "bid_strategy", "approved_by", "change_date",
	"executed_at", "metadata", "rollback_status", "rollback_id", "rollback_reason", "rollback_executed_at",
	"monitoring_completed_at", "created_at",
}

type ChangeRecordsRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    ChangeRecordsRepository
	context context.Context
}

func (suite *ChangeRecordsRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewChangeRecordsRepo(mock)
	suite.context = context.Background()
}

func (suite *ChangeRecordsRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestChangeRecordsRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ChangeRecordsRepoTestSuite))
}

// anyChangeRecordArgs matches the 24 insert parameters without constraining
// their values; pgxmock treats an expectation without WithArgs as expecting
// zero arguments.
func anyChangeRecordArgs() []interface{} {
	args := make([]interface{}, len(changeRecordRowColumns))
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func (suite *ChangeRecordsRepoTestSuite) validChange() *models.ChangeRecord {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	oldValue := 100.0
	newValue := 110.0
	return &models.ChangeRecord{
		ID:         uuid.New(),
		CustomerID: "cust-1",
		EntityType: models.EntityCampaign,
		EntityID:   "camp-1",
		CampaignID: "camp-1",
		Lever:      models.LeverBudget,
		ActionType: models.ActionSetBudget,
		OldValue:   &oldValue,
		NewValue:   &newValue,
		ChangePct:  10,
		RuleID:     "BUDGET_UP",
		RiskTier:   models.RiskTierMed,
		ApprovedBy: models.ApprovedBySystem,
		ChangeDate: day,
		ExecutedAt: day.Add(10 * time.Hour),
		Metadata:   models.JSONB{"confidence": 0.8},
	}
}

func (suite *ChangeRecordsRepoTestSuite) changeRow(rec *models.ChangeRecord) *pgxmock.Rows {
	return pgxmock.NewRows(changeRecordRowColumns).AddRow(
		rec.ID, rec.CustomerID, rec.EntityType, rec.EntityID, rec.CampaignID, rec.AdGroupID, rec.Lever, rec.ActionType,
		rec.OldValue, rec.NewValue, rec.ChangePct, rec.RuleID, rec.RiskTier, rec.BidStrategy, rec.ApprovedBy, rec.ChangeDate,
		rec.ExecutedAt, []byte(`{"confidence":0.8}`), rec.RollbackStatus, rec.RollbackID, rec.RollbackReason,
		rec.RollbackExecutedAt, rec.MonitoringCompletedAt, rec.ExecutedAt,
	)
}

func (suite *ChangeRecordsRepoTestSuite) TestCreate_Success() {
	rec := suite.validChange()

	suite.mock.ExpectExec(`INSERT INTO change_records`).
		WithArgs(anyChangeRecordArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Create(suite.context, rec)
	assert.NoError(suite.T(), err)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ChangeRecordsRepoTestSuite) TestCreate_DefaultsIDAndTimestamps() {
	rec := suite.validChange()
	rec.ID = uuid.Nil
	rec.ExecutedAt = time.Time{}
	rec.ChangeDate = time.Time{}

	suite.mock.ExpectExec(`INSERT INTO change_records`).
		WithArgs(anyChangeRecordArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Create(suite.context, rec)
	assert.NoError(suite.T(), err)
	assert.NotEqual(suite.T(), uuid.Nil, rec.ID)
	assert.False(suite.T(), rec.ExecutedAt.IsZero())
	assert.Equal(suite.T(), rec.ExecutedAt.Truncate(24*time.Hour), rec.ChangeDate)
}

func (suite *ChangeRecordsRepoTestSuite) TestCreate_MissingCustomerID() {
	rec := suite.validChange()
	rec.CustomerID = ""

	err := suite.repo.Create(suite.context, rec)
	assert.Error(suite.T(), err)
	var vErr *models.ValidationError
	assert.True(suite.T(), errors.As(err, &vErr))
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ChangeRecordsRepoTestSuite) TestCreate_DatabaseDownIsPersistenceError() {
	rec := suite.validChange()

	suite.mock.ExpectExec(`INSERT INTO change_records`).
		WithArgs(anyChangeRecordArgs()...).
		WillReturnError(errors.New("connection refused"))

	err := suite.repo.Create(suite.context, rec)
	assert.Error(suite.T(), err)
	var pErr *models.PersistenceError
	assert.True(suite.T(), errors.As(err, &pErr))
}

func (suite *ChangeRecordsRepoTestSuite) TestGetByID_Found() {
	rec := suite.validChange()

	suite.mock.ExpectQuery(`FROM change_records\s+WHERE customer_id = \$1 AND id = \$2`).
		WithArgs("cust-1", rec.ID).
		WillReturnRows(suite.changeRow(rec))

	found, err := suite.repo.GetByID(suite.context, "cust-1", rec.ID)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), found)
	assert.Equal(suite.T(), rec.ID, found.ID)
	assert.Equal(suite.T(), 100.0, *found.OldValue)
	assert.Equal(suite.T(), 0.8, found.Metadata["confidence"])
}

func (suite *ChangeRecordsRepoTestSuite) TestGetByID_NotFoundReturnsNil() {
	changeID := uuid.New()

	suite.mock.ExpectQuery(`FROM change_records`).
		WithArgs("cust-1", changeID).
		WillReturnError(pgx.ErrNoRows)

	found, err := suite.repo.GetByID(suite.context, "cust-1", changeID)
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), found)
}

func (suite *ChangeRecordsRepoTestSuite) TestList_FiltersAppendInOrder() {
	rec := suite.validChange()
	lever := models.LeverBudget
	status := models.RollbackStatusActive

	suite.mock.ExpectQuery(`WHERE customer_id = \$1\s+AND lever = \$2 AND rollback_status = \$3 ORDER BY executed_at DESC LIMIT \$4`).
		WithArgs("cust-1", lever, status, 50).
		WillReturnRows(suite.changeRow(rec))

	records, err := suite.repo.List(suite.context, "cust-1", &models.ChangeRecordFilters{
		Lever:  &lever,
		Status: &status,
		Limit:  50,
	})
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), records, 1)
}

func (suite *ChangeRecordsRepoTestSuite) TestLatestForEntityLever_NoneReturnsNil() {
	since := time.Now().UTC().AddDate(0, 0, -7)

	suite.mock.ExpectQuery(`WHERE customer_id = \$1 AND entity_id = \$2 AND entity_type = \$3 AND lever = \$4 AND executed_at >= \$5`).
		WithArgs("cust-1", "camp-1", models.EntityCampaign, models.LeverBudget, since).
		WillReturnError(pgx.ErrNoRows)

	rec, err := suite.repo.LatestForEntityLever(suite.context, "cust-1", "camp-1", models.EntityCampaign, models.LeverBudget, since)
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), rec)
}

func (suite *ChangeRecordsRepoTestSuite) TestCountActionsForDay_AdGroupScoped() {
	day := time.Now().UTC()
	dayStart := day.Truncate(24 * time.Hour)

	suite.mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM change_records`).
		WithArgs("cust-1", "camp-1", models.ActionPauseAd, dayStart, dayStart.Add(24*time.Hour), "ag-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := suite.repo.CountActionsForDay(suite.context, "cust-1", "camp-1", "ag-1", models.ActionPauseAd, day)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 3, count)
}

func (suite *ChangeRecordsRepoTestSuite) TestListForMonitoring_ExcludesResolvedAndRollbacks() {
	rec := suite.validChange()
	cutoff := time.Now().UTC().Add(-72 * time.Hour)

	suite.mock.ExpectQuery(`rollback_status IN \('', 'monitoring'\)\s+AND rule_id <> \$2\s+AND executed_at < \$3\s+ORDER BY executed_at ASC`).
		WithArgs("cust-1", models.RuleIDRollback, cutoff).
		WillReturnRows(suite.changeRow(rec))

	records, err := suite.repo.ListForMonitoring(suite.context, "cust-1", cutoff)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), records, 1)
	assert.Equal(suite.T(), rec.ID, records[0].ID)
}

func (suite *ChangeRecordsRepoTestSuite) TestMarkRolledBack_InsertsReversalAndFlipsOriginalAtomically() {
	original := suite.validChange()
	reversal := suite.validChange()
	reversal.ID = uuid.New()
	reversal.RuleID = models.RuleIDRollback
	at := time.Now().UTC()

	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`INSERT INTO change_records`).
		WithArgs(anyChangeRecordArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`UPDATE change_records\s+SET rollback_status = \$1, rollback_id = \$2`).
		WithArgs(models.RollbackStatusRolledBack, reversal.ID, "cpa regression", at, original.ID, reversal.CustomerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectCommit()

	err := suite.repo.MarkRolledBack(suite.context, original.ID, reversal, "cpa regression", at)
	assert.NoError(suite.T(), err)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ChangeRecordsRepoTestSuite) TestMarkRolledBack_AlreadyResolvedRollsBackTransaction() {
	original := suite.validChange()
	reversal := suite.validChange()
	reversal.ID = uuid.New()
	reversal.RuleID = models.RuleIDRollback
	at := time.Now().UTC()

	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`INSERT INTO change_records`).
		WithArgs(anyChangeRecordArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`UPDATE change_records\s+SET rollback_status = \$1, rollback_id = \$2`).
		WithArgs(models.RollbackStatusRolledBack, reversal.ID, "cpa regression", at, original.ID, reversal.CustomerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	suite.mock.ExpectRollback()

	err := suite.repo.MarkRolledBack(suite.context, original.ID, reversal, "cpa regression", at)
	assert.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "not eligible")
}

func (suite *ChangeRecordsRepoTestSuite) TestMarkConfirmedGood_GuardRejectsResolvedChanges() {
	changeID := uuid.New()
	at := time.Now().UTC()

	suite.mock.ExpectExec(`UPDATE change_records\s+SET rollback_status = \$1, monitoring_completed_at = \$2`).
		WithArgs(models.RollbackStatusConfirmedGood, at, "cust-1", changeID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := suite.repo.MarkConfirmedGood(suite.context, "cust-1", changeID, at)
	assert.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "not eligible")
}

func (suite *ChangeRecordsRepoTestSuite) TestSummary_AggregatesBreakdowns() {
	start := time.Now().UTC().AddDate(0, 0, -30)
	end := time.Now().UTC()

	suite.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM change_records WHERE customer_id = \$1`).
		WithArgs("cust-1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	suite.mock.ExpectQuery(`SELECT lever, COUNT\(\*\)`).
		WithArgs("cust-1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"lever", "count"}).AddRow("budget", 4).AddRow("keyword", 3))
	suite.mock.ExpectQuery(`SELECT action_type, COUNT\(\*\)`).
		WithArgs("cust-1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"action_type", "count"}).AddRow("set_budget", 4).AddRow("pause_keyword", 3))
	suite.mock.ExpectQuery(`SELECT COALESCE\(NULLIF\(rollback_status, ''\), 'active'\), COUNT\(\*\)`).
		WithArgs("cust-1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).AddRow("active", 5).AddRow("rolled_back", 2))

	summary, err := suite.repo.Summary(suite.context, "cust-1", start, end)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 7, summary.TotalChanges)
	assert.Equal(suite.T(), 4, summary.LeverBreakdown["budget"])
	assert.Equal(suite.T(), 2, summary.StatusBreakdown["rolled_back"])
}

func (suite *ChangeRecordsRepoTestSuite) TestFindInconsistent_ReportsAllThreeKinds() {
	missingID := uuid.New()
	orphanID := uuid.New()

	suite.mock.ExpectQuery(`rollback_status = \$2 AND rollback_id IS NULL`).
		WithArgs("cust-1", models.RollbackStatusRolledBack).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(missingID))
	suite.mock.ExpectQuery(`c\.rollback_id IS NOT NULL`).
		WithArgs("cust-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	suite.mock.ExpectQuery(`c\.rule_id = \$2`).
		WithArgs("cust-1", models.RuleIDRollback).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(orphanID))

	found, err := suite.repo.FindInconsistent(suite.context, "cust-1")
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), found, 2)
	assert.Equal(suite.T(), models.InconsistencyMissingRollbackID, found[0].Kind)
	assert.Equal(suite.T(), models.InconsistencyOrphanedRollback, found[1].Kind)
}
