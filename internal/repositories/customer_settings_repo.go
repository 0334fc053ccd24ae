package repositories

import (
	"context"
	"errors"
	"time"

	"adpilot/internal/models"

	"github.com/jackc/pgx/v5"
)

type CustomerSettingsRepository interface {
	// GetByCustomerID returns nil when the customer has no row; callers
	// fall back to the ROAS profile and default risk tolerance.
	GetByCustomerID(ctx context.Context, customerID string) (*models.CustomerSettings, error)

	// ListActive returns every customer the control loop should monitor.
	ListActive(ctx context.Context, limit, offset int) ([]*models.CustomerSettings, error)

	Upsert(ctx context.Context, settings *models.CustomerSettings) error
}

type customerSettingsRepo struct {
	db Database
}

func NewCustomerSettingsRepo(db Database) CustomerSettingsRepository {
	return &customerSettingsRepo{db: db}
}

func (r *customerSettingsRepo) GetByCustomerID(ctx context.Context, customerID string) (*models.CustomerSettings, error) {
	query := `
		SELECT customer_id, kpi_profile, risk_tolerance, active, created_at, updated_at
		FROM customer_settings
		WHERE customer_id = $1
	`
	settings := &models.CustomerSettings{}
	err := r.db.QueryRow(ctx, query, customerID).Scan(
		&settings.CustomerID,
		&settings.KPIProfile,
		&settings.RiskTolerance,
		&settings.Active,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &models.PersistenceError{Operation: "get_customer_settings", Err: err}
	}
	return settings, nil
}

func (r *customerSettingsRepo) ListActive(ctx context.Context, limit, offset int) ([]*models.CustomerSettings, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT customer_id, kpi_profile, risk_tolerance, active, created_at, updated_at
		FROM customer_settings
		WHERE active = true
		ORDER BY customer_id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, &models.PersistenceError{Operation: "list_active_customers", Err: err}
	}
	defer rows.Close()

	var customers []*models.CustomerSettings
	for rows.Next() {
		settings := &models.CustomerSettings{}
		if err := rows.Scan(
			&settings.CustomerID,
			&settings.KPIProfile,
			&settings.RiskTolerance,
			&settings.Active,
			&settings.CreatedAt,
			&settings.UpdatedAt,
		); err != nil {
			return nil, &models.PersistenceError{Operation: "list_active_customers", Err: err}
		}
		customers = append(customers, settings)
	}
	return customers, rows.Err()
}

func (r *customerSettingsRepo) Upsert(ctx context.Context, settings *models.CustomerSettings) error {
	if settings.CustomerID == "" {
		return models.NewValidationError("customer_id", "is required")
	}
	if settings.KPIProfile == "" {
		settings.KPIProfile = models.KPIProfileROAS
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO customer_settings (customer_id, kpi_profile, risk_tolerance, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (customer_id) DO UPDATE
		SET kpi_profile = EXCLUDED.kpi_profile, risk_tolerance = EXCLUDED.risk_tolerance, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, settings.CustomerID, settings.KPIProfile, settings.RiskTolerance, settings.Active, now)
	if err != nil {
		return &models.PersistenceError{Operation: "upsert_customer_settings", Err: err}
	}
	return nil
}
