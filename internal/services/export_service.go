package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adpilot/internal/models"
	"adpilot/internal/repositories"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const exportBucket = "audit-exports"

// ExportService writes audit-trail snapshots to object storage for the
// downstream reporting collaborator.
type ExportService interface {
	// ExportChanges writes the customer's change records for a date range
	// as JSON lines and returns the object name.
	ExportChanges(ctx context.Context, customerID string, startDate, endDate time.Time) (string, error)

	GetPresignedURL(objectName string, expiry time.Duration) (string, error)
}

type exportService struct {
	client      *minio.Client
	changesRepo repositories.ChangeRecordsRepository
}

func NewExportService(endpoint, accessKey, secretKey string, useSSL bool, changesRepo repositories.ChangeRecordsRepository) (ExportService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &exportService{client: client, changesRepo: changesRepo}, nil
}

func (s *exportService) ExportChanges(ctx context.Context, customerID string, startDate, endDate time.Time) (string, error) {
	if startDate.After(endDate) {
		return "", models.NewValidationError("start_date", "cannot be after end_date")
	}

	records, err := s.changesRepo.List(ctx, customerID, &models.ChangeRecordFilters{
		StartDate: &startDate,
		EndDate:   &endDate,
	})
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return "", fmt.Errorf("failed to encode change %s: %w", rec.ID, err)
		}
	}

	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("%s/changes_%s_%s.jsonl",
		customerID, startDate.Format("20060102"), endDate.Format("20060102"))

	_, err = s.client.PutObject(ctx, exportBucket, objectName, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	return objectName, nil
}

func (s *exportService) GetPresignedURL(objectName string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(context.Background(), exportBucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

func (s *exportService) ensureBucket(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, exportBucket)
	if err != nil {
		return err
	}
	if !found {
		return s.client.MakeBucket(ctx, exportBucket, minio.MakeBucketOptions{})
	}
	return nil
}
