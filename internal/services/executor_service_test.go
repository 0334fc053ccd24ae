package services

import (
	"context"
	"errors"
	"testing"

	"adpilot/internal/ads"
	"adpilot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ExecutorTestSuite struct {
	suite.Suite
	mockRepo       *MockChangeRecordsRepository
	mockGuardrails *MockGuardrailEngine
	mockAds        *MockAdsClient
	executor       Executor
	ctx            context.Context
}

func (suite *ExecutorTestSuite) SetupTest() {
	suite.mockRepo = &MockChangeRecordsRepository{}
	suite.mockGuardrails = &MockGuardrailEngine{}
	suite.mockAds = &MockAdsClient{}
	suite.executor = NewExecutor(suite.mockRepo, suite.mockGuardrails, suite.mockAds, nil)
	suite.ctx = context.Background()
}

func budgetRec() *models.Recommendation {
	return &models.Recommendation{
		RuleID:           "BUDGET_UP",
		CustomerID:       "cust-1",
		EntityType:       models.EntityCampaign,
		EntityID:         "camp-1",
		CampaignID:       "camp-1",
		ActionType:       models.ActionSetBudget,
		RiskTier:         models.RiskTierMed,
		Confidence:       0.8,
		CurrentValue:     floatPtr(100),
		RecommendedValue: floatPtr(110),
		ChangePct:        10,
	}
}

func allowed() *GuardrailResult {
	return &GuardrailResult{Allowed: true}
}

func (suite *ExecutorTestSuite) TestExecute_SuccessAppendsExactlyOneAuditRecord() {
	// Arrange
	rec := budgetRec()
	suite.mockGuardrails.On("Validate", suite.ctx, rec).Return(allowed(), nil)
	suite.mockAds.On("SetCampaignBudget", suite.ctx, "cust-1", "camp-1", 110.0).
		Return(&ads.MutateResponse{Status: ads.StatusSuccess, ResourceRef: "customers/cust-1/campaigns/camp-1"}, nil)
	suite.mockRepo.On("Create", suite.ctx, mock.AnythingOfType("*models.ChangeRecord")).
		Run(func(args mock.Arguments) {
			change := args.Get(1).(*models.ChangeRecord)
			assert.Equal(suite.T(), models.LeverBudget, change.Lever)
			assert.Equal(suite.T(), 100.0, *change.OldValue)
			assert.Equal(suite.T(), 110.0, *change.NewValue)
			assert.Equal(suite.T(), models.ApprovedBySystem, change.ApprovedBy)
		}).
		Return(nil).Once()

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{rec}, false)

	// Assert
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, summary.Total)
	assert.Equal(suite.T(), 1, summary.Successful)
	assert.Equal(suite.T(), 0, summary.Failed)
	assert.True(suite.T(), summary.Results[0].Success)
	assert.NotNil(suite.T(), summary.Results[0].ChangeID)
	suite.mockRepo.AssertNumberOfCalls(suite.T(), "Create", 1)
}

func (suite *ExecutorTestSuite) TestExecute_DryRunNeverTouchesPlatformOrAudit() {
	// Arrange
	rec := budgetRec()
	suite.mockGuardrails.On("Validate", suite.ctx, rec).Return(allowed(), nil)

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{rec}, true)

	// Assert
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), summary.DryRun)
	assert.Equal(suite.T(), 1, summary.Successful)
	assert.True(suite.T(), summary.Results[0].DryRun)
	suite.mockAds.AssertNotCalled(suite.T(), "SetCampaignBudget", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	suite.mockRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

func (suite *ExecutorTestSuite) TestExecute_GuardrailBlockBecomesFailedResult() {
	// Arrange
	rec := budgetRec()
	suite.mockGuardrails.On("Validate", suite.ctx, rec).
		Return(&GuardrailResult{Allowed: false, Check: CheckCooldown, Reason: "cooldown active"}, nil)

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{rec}, false)

	// Assert
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, summary.Failed)
	assert.Equal(suite.T(), "cooldown active", summary.Results[0].Reason)
	suite.mockAds.AssertNotCalled(suite.T(), "SetCampaignBudget", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	suite.mockRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

func (suite *ExecutorTestSuite) TestExecute_ExternalFailureLeavesNoAuditRecord() {
	// Arrange
	rec := budgetRec()
	suite.mockGuardrails.On("Validate", suite.ctx, rec).Return(allowed(), nil)
	suite.mockAds.On("SetCampaignBudget", suite.ctx, "cust-1", "camp-1", 110.0).
		Return(&ads.MutateResponse{Status: ads.StatusFailed, Error: "quota exceeded"}, nil)

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{rec}, false)

	// Assert
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, summary.Failed)
	assert.Equal(suite.T(), "quota exceeded", summary.Results[0].Error)
	suite.mockRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

func (suite *ExecutorTestSuite) TestExecute_ExternalErrorDoesNotAbortBatch() {
	// Arrange
	failing := budgetRec()
	succeeding := budgetRec()
	succeeding.EntityID = "camp-2"
	succeeding.CampaignID = "camp-2"
	suite.mockGuardrails.On("Validate", suite.ctx, failing).Return(allowed(), nil)
	suite.mockGuardrails.On("Validate", suite.ctx, succeeding).Return(allowed(), nil)
	suite.mockAds.On("SetCampaignBudget", suite.ctx, "cust-1", "camp-1", 110.0).
		Return(nil, &models.ExternalCallError{Operation: "set_budget", Err: errors.New("timeout")})
	suite.mockAds.On("SetCampaignBudget", suite.ctx, "cust-1", "camp-2", 110.0).
		Return(&ads.MutateResponse{Status: ads.StatusSuccess, ResourceRef: "customers/cust-1/campaigns/camp-2"}, nil)
	suite.mockRepo.On("Create", suite.ctx, mock.AnythingOfType("*models.ChangeRecord")).Return(nil)

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{failing, succeeding}, false)

	// Assert
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, summary.Total)
	assert.Equal(suite.T(), 1, summary.Failed)
	assert.Equal(suite.T(), 1, summary.Successful)
	suite.mockRepo.AssertNumberOfCalls(suite.T(), "Create", 1)
}

func (suite *ExecutorTestSuite) TestExecute_PersistenceFailureAbortsBatch() {
	// Arrange
	first := budgetRec()
	second := budgetRec()
	second.EntityID = "camp-2"
	second.CampaignID = "camp-2"
	suite.mockGuardrails.On("Validate", suite.ctx, first).Return(allowed(), nil)
	suite.mockAds.On("SetCampaignBudget", suite.ctx, "cust-1", "camp-1", 110.0).
		Return(&ads.MutateResponse{Status: ads.StatusSuccess}, nil)
	suite.mockRepo.On("Create", suite.ctx, mock.AnythingOfType("*models.ChangeRecord")).
		Return(&models.PersistenceError{Operation: "create", Err: errors.New("connection refused")})

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{first, second}, false)

	// Assert
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), summary)
	var pErr *models.PersistenceError
	assert.True(suite.T(), errors.As(err, &pErr))
	suite.mockGuardrails.AssertNotCalled(suite.T(), "Validate", suite.ctx, second)
}

func (suite *ExecutorTestSuite) TestExecute_PreBlockedRecommendationFails() {
	// Arrange
	rec := budgetRec()
	rec.Blocked = true
	rec.BlockReason = "campaign is under manual review"

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{rec}, false)

	// Assert
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, summary.Failed)
	assert.Equal(suite.T(), "campaign is under manual review", summary.Results[0].Reason)
	suite.mockGuardrails.AssertNotCalled(suite.T(), "Validate", mock.Anything, mock.Anything)
}

func (suite *ExecutorTestSuite) TestExecute_NonExecutableActionsFilteredBeforeCounting() {
	// Arrange
	review := &models.Recommendation{
		RuleID:     "SEARCH_TERMS",
		CustomerID: "cust-1",
		EntityType: models.EntityCampaign,
		EntityID:   "camp-1",
		ActionType: "review_search_terms",
	}

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-1", []*models.Recommendation{review, nil}, false)

	// Assert
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 0, summary.Total)
	assert.Empty(suite.T(), summary.Results)
}

func (suite *ExecutorTestSuite) TestExecute_CustomerIDDefaultedFromBatch() {
	// Arrange
	rec := budgetRec()
	rec.CustomerID = ""
	suite.mockGuardrails.On("Validate", suite.ctx, mock.MatchedBy(func(r *models.Recommendation) bool {
		return r.CustomerID == "cust-9"
	})).Return(allowed(), nil)

	// Act
	summary, err := suite.executor.Execute(suite.ctx, "cust-9", []*models.Recommendation{rec}, true)

	// Assert
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, summary.Successful)
	suite.mockGuardrails.AssertExpectations(suite.T())
}

func TestExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}
