// internal/lending/providers/config.go
// Package providers normalizes raw payment gateway payloads into events the
// ledger can apply. Each provider has a versioned configuration row; only one
// version per provider is active at a time.
package providers

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
)

// Settings is the JSON payload of a provider_configs row.
type Settings struct {
	// StatusMap translates the provider's status vocabulary into the
	// transaction status machine (PENDING, COMPLETED, FAILED, CANCELLED,
	// REFUNDED).
	StatusMap map[string]string `json:"statusMap"`
	// DefaultMethod is recorded on payments when the payload names none.
	DefaultMethod string `json:"defaultMethod"`
}

type ProviderConfig struct {
	ID        uuid.UUID
	Provider  string
	Version   int
	Settings  Settings
	IsActive  bool
	CreatedAt time.Time
}

type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "providers"}),
	}
}

// Active returns the currently active configuration for a provider.
func (s *Store) Active(ctx context.Context, provider string) (*ProviderConfig, error) {
	query := `SELECT id, provider, version, settings, is_active, created_at
		FROM provider_configs WHERE provider = $1 AND is_active`

	var cfg ProviderConfig
	var rawSettings []byte
	err := s.db.QueryRowContext(ctx, query, provider).Scan(
		&cfg.ID, &cfg.Provider, &cfg.Version, &rawSettings, &cfg.IsActive, &cfg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewProviderConfigNotFoundError(provider)
	}
	if err != nil {
		return nil, errors.NewPersistenceError("load provider config", err)
	}
	if err := json.Unmarshal(rawSettings, &cfg.Settings); err != nil {
		return nil, errors.NewPersistenceError("decode provider settings", err)
	}

	return &cfg, nil
}

// Publish stores a new settings version and deactivates the previous one in
// the same transaction, so readers always see exactly one active version.
// Called from operational tooling when onboarding or reconfiguring a payment
// provider; the workers themselves only read via Active.
func (s *Store) Publish(ctx context.Context, provider string, settings Settings) (*ProviderConfig, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.NewPersistenceError("encode provider settings", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewPersistenceError("begin publish tx", err)
	}
	defer tx.Rollback()

	var maxVersion int
	versionQuery := `SELECT COALESCE(MAX(version), 0) FROM provider_configs WHERE provider = $1`
	if err := tx.QueryRowContext(ctx, versionQuery, provider).Scan(&maxVersion); err != nil {
		return nil, errors.NewPersistenceError("read provider version", err)
	}

	deactivate := `UPDATE provider_configs SET is_active = FALSE WHERE provider = $1 AND is_active`
	if _, err := tx.ExecContext(ctx, deactivate, provider); err != nil {
		return nil, errors.NewPersistenceError("deactivate provider config", err)
	}

	cfg := &ProviderConfig{
		ID:       uuid.New(),
		Provider: provider,
		Version:  maxVersion + 1,
		Settings: settings,
		IsActive: true,
	}
	insert := `INSERT INTO provider_configs (id, provider, version, settings, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())`
	if _, err := tx.ExecContext(ctx, insert, cfg.ID, cfg.Provider, cfg.Version, data); err != nil {
		return nil, errors.NewPersistenceError("insert provider config", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewPersistenceError("commit publish tx", err)
	}

	s.logger.Info("provider config published", map[string]interface{}{
		"provider": provider,
		"version":  cfg.Version,
	})

	return cfg, nil
}
