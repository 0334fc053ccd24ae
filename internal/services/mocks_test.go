package services

import (
	"context"
	"time"

	"adpilot/internal/ads"
	"adpilot/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockChangeRecordsRepository struct {
	mock.Mock
}

func (m *MockChangeRecordsRepository) Create(ctx context.Context, rec *models.ChangeRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockChangeRecordsRepository) GetByID(ctx context.Context, customerID string, id uuid.UUID) (*models.ChangeRecord, error) {
	args := m.Called(ctx, customerID, id)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.ChangeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChangeRecordsRepository) List(ctx context.Context, customerID string, filters *models.ChangeRecordFilters) ([]*models.ChangeRecord, error) {
	args := m.Called(ctx, customerID, filters)
	if recs := args.Get(0); recs != nil {
		return recs.([]*models.ChangeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChangeRecordsRepository) LatestForEntityLever(ctx context.Context, customerID, entityID string, entityType models.EntityType, lever models.Lever, since time.Time) (*models.ChangeRecord, error) {
	args := m.Called(ctx, customerID, entityID, entityType, lever, since)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.ChangeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChangeRecordsRepository) LatestForCampaignLever(ctx context.Context, customerID, campaignID string, lever models.Lever, since time.Time) (*models.ChangeRecord, error) {
	args := m.Called(ctx, customerID, campaignID, lever, since)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.ChangeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChangeRecordsRepository) CountActionsForDay(ctx context.Context, customerID, campaignID, adGroupID, actionType string, day time.Time) (int, error) {
	args := m.Called(ctx, customerID, campaignID, adGroupID, actionType, day)
	return args.Int(0), args.Error(1)
}

func (m *MockChangeRecordsRepository) ListForMonitoring(ctx context.Context, customerID string, executedBefore time.Time) ([]*models.ChangeRecord, error) {
	args := m.Called(ctx, customerID, executedBefore)
	if recs := args.Get(0); recs != nil {
		return recs.([]*models.ChangeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChangeRecordsRepository) MarkRolledBack(ctx context.Context, originalID uuid.UUID, reversal *models.ChangeRecord, reason string, at time.Time) error {
	args := m.Called(ctx, originalID, reversal, reason, at)
	return args.Error(0)
}

func (m *MockChangeRecordsRepository) MarkConfirmedGood(ctx context.Context, customerID string, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, customerID, id, at)
	return args.Error(0)
}

func (m *MockChangeRecordsRepository) MarkMonitoring(ctx context.Context, customerID string, id uuid.UUID) error {
	args := m.Called(ctx, customerID, id)
	return args.Error(0)
}

func (m *MockChangeRecordsRepository) Summary(ctx context.Context, customerID string, startDate, endDate time.Time) (*models.ChangeSummary, error) {
	args := m.Called(ctx, customerID, startDate, endDate)
	if s := args.Get(0); s != nil {
		return s.(*models.ChangeSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChangeRecordsRepository) FindInconsistent(ctx context.Context, customerID string) ([]models.Inconsistency, error) {
	args := m.Called(ctx, customerID)
	if found := args.Get(0); found != nil {
		return found.([]models.Inconsistency), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockCustomerSettingsRepository struct {
	mock.Mock
}

func (m *MockCustomerSettingsRepository) GetByCustomerID(ctx context.Context, customerID string) (*models.CustomerSettings, error) {
	args := m.Called(ctx, customerID)
	if s := args.Get(0); s != nil {
		return s.(*models.CustomerSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCustomerSettingsRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.CustomerSettings, error) {
	args := m.Called(ctx, limit, offset)
	if s := args.Get(0); s != nil {
		return s.([]*models.CustomerSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCustomerSettingsRepository) Upsert(ctx context.Context, settings *models.CustomerSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

type MockAdsClient struct {
	mock.Mock
}

func (m *MockAdsClient) respond(args mock.Arguments) (*ads.MutateResponse, error) {
	if resp := args.Get(0); resp != nil {
		return resp.(*ads.MutateResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAdsClient) SetCampaignBudget(ctx context.Context, customerID, campaignID string, budget float64) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, campaignID, budget))
}

func (m *MockAdsClient) SetCampaignBidTarget(ctx context.Context, customerID, campaignID, bidStrategy string, target float64) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, campaignID, bidStrategy, target))
}

func (m *MockAdsClient) AddKeyword(ctx context.Context, customerID, adGroupID, keywordText, matchType string, bid float64) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, adGroupID, keywordText, matchType, bid))
}

func (m *MockAdsClient) PauseKeyword(ctx context.Context, customerID, keywordID string) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, keywordID))
}

func (m *MockAdsClient) EnableKeyword(ctx context.Context, customerID, keywordID string) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, keywordID))
}

func (m *MockAdsClient) UpdateKeywordBid(ctx context.Context, customerID, keywordID string, bid float64) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, keywordID, bid))
}

func (m *MockAdsClient) AddNegativeKeyword(ctx context.Context, customerID, campaignID, keywordText, matchType string) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, campaignID, keywordText, matchType))
}

func (m *MockAdsClient) PauseAd(ctx context.Context, customerID, adID string) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, adID))
}

func (m *MockAdsClient) EnableAd(ctx context.Context, customerID, adID string) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, adID))
}

func (m *MockAdsClient) UpdateProductBid(ctx context.Context, customerID, partitionID string, bid float64) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, partitionID, bid))
}

func (m *MockAdsClient) ExcludeProduct(ctx context.Context, customerID, partitionID string) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, partitionID))
}

func (m *MockAdsClient) IncludeProduct(ctx context.Context, customerID, partitionID string) (*ads.MutateResponse, error) {
	return m.respond(m.Called(ctx, customerID, partitionID))
}

type MockMetricsProvider struct {
	mock.Mock
}

func (m *MockMetricsProvider) Metrics(ctx context.Context, entityType models.EntityType, entityID string, startDate, endDate time.Time) (*models.PerformanceMetrics, error) {
	args := m.Called(ctx, entityType, entityID, startDate, endDate)
	if metrics := args.Get(0); metrics != nil {
		return metrics.(*models.PerformanceMetrics), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockGuardrailEngine struct {
	mock.Mock
}

func (m *MockGuardrailEngine) Validate(ctx context.Context, rec *models.Recommendation) (*GuardrailResult, error) {
	args := m.Called(ctx, rec)
	if result := args.Get(0); result != nil {
		return result.(*GuardrailResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func floatPtr(v float64) *float64 { return &v }
