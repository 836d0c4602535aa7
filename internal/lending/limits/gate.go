// internal/lending/limits/gate.go
// Package limits checks a client's lending plan before an approval goes
// through. Plans change rarely, so lookups are cached in Redis; the active
// loan count is always read fresh.
package limits

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
)

const planCacheTTL = 5 * time.Minute

// Plan is a client's lending plan row.
type Plan struct {
	ClientID       string          `json:"clientId"`
	Name           string          `json:"name"`
	MaxPrincipal   decimal.Decimal `json:"maxPrincipal"`
	MaxTermMonths  int             `json:"maxTermMonths"`
	MaxActiveLoans int             `json:"maxActiveLoans"`
	IsActive       bool            `json:"isActive"`
}

// Decision is the gate's verdict for one proposed approval.
type Decision struct {
	Allowed bool
	Reason  string
	Plan    *Plan
}

type Gate struct {
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func NewGate(db *sql.DB, rdb *redis.Client, log logger.Logger) *Gate {
	return &Gate{
		db:     db,
		redis:  rdb,
		logger: log.WithFields(map[string]interface{}{"component": "limits"}),
	}
}

// Check validates the proposed principal and term against the client's plan.
// A client without a plan, or with a deactivated one, is not lendable.
func (g *Gate) Check(ctx context.Context, clientID uuid.UUID, amount decimal.Decimal, termMonths int) (*Decision, error) {
	plan, err := g.lookupPlan(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return &Decision{Allowed: false, Reason: "client has no lending plan"}, nil
	}
	if !plan.IsActive {
		return &Decision{Allowed: false, Reason: "lending plan is deactivated", Plan: plan}, nil
	}

	if amount.GreaterThan(plan.MaxPrincipal) {
		return &Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("amount %s exceeds plan limit %s", amount, plan.MaxPrincipal),
			Plan:    plan,
		}, nil
	}
	if termMonths > plan.MaxTermMonths {
		return &Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("term %d exceeds plan limit %d", termMonths, plan.MaxTermMonths),
			Plan:    plan,
		}, nil
	}

	if plan.MaxActiveLoans > 0 {
		var active int
		countQuery := `SELECT COUNT(*) FROM loans WHERE client_id = $1 AND status = 'ACTIVE'`
		if err := g.db.QueryRowContext(ctx, countQuery, clientID).Scan(&active); err != nil {
			return nil, errors.NewPersistenceError("count active loans", err)
		}
		if active >= plan.MaxActiveLoans {
			return &Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("client already has %d active loans, plan allows %d", active, plan.MaxActiveLoans),
				Plan:    plan,
			}, nil
		}
	}

	return &Decision{Allowed: true, Plan: plan}, nil
}

func (g *Gate) lookupPlan(ctx context.Context, clientID uuid.UUID) (*Plan, error) {
	cacheKey := "plan:" + clientID.String()
	if val, err := g.redis.Get(ctx, cacheKey).Result(); err == nil {
		var plan Plan
		if err := json.Unmarshal([]byte(val), &plan); err == nil {
			return &plan, nil
		}
	}

	var plan Plan
	query := `SELECT client_id, name, max_principal, max_term_months, max_active_loans, is_active
		FROM lending_plans WHERE client_id = $1`
	err := g.db.QueryRowContext(ctx, query, clientID).Scan(
		&plan.ClientID, &plan.Name, &plan.MaxPrincipal, &plan.MaxTermMonths,
		&plan.MaxActiveLoans, &plan.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("lookup lending plan", err)
	}

	data, _ := json.Marshal(plan)
	if err := g.redis.Set(ctx, cacheKey, data, planCacheTTL).Err(); err != nil {
		g.logger.Debug("plan cache write failed", map[string]interface{}{
			"clientId": clientID.String(),
			"error":    err.Error(),
		})
	}

	return &plan, nil
}
