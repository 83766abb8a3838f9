package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/commission"
)

// =============================================================================
// COMMISSION STORE (commission.Store interface)
// =============================================================================

const baseRateKey = "commission.base_rate"

// BaseRate returns the stored base rate; ok is false when none is stored.
func (s *Store) BaseRate(ctx context.Context) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM platform_settings WHERE key = ?`, baseRateKey,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false, err
	}
	return rate, true, nil
}

func (s *Store) SetBaseRate(ctx context.Context, rate decimal.Decimal, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, baseRateKey, rate.String(), fmtTime(updatedAt))
	return err
}

// SeedBaseRate stores rate only if no base rate has been set yet.
func (s *Store) SeedBaseRate(ctx context.Context, rate decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, baseRateKey, rate.String(), fmtTime(time.Now()))
	return err
}

func (s *Store) PromotionsForProduct(ctx context.Context, productID string) ([]commission.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, bonus_rate, valid_from, valid_until, description, created_at
		FROM promotions
		WHERE product_id = ?
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []commission.Promotion
	for rows.Next() {
		var (
			p                     commission.Promotion
			rate, createdAt       string
			validFrom, validUntil sql.NullString
			description           sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ProductID, &rate, &validFrom, &validUntil, &description, &createdAt); err != nil {
			return nil, err
		}
		p.BonusRate = parseDecimal(rate)
		p.ValidFrom = timePtr(validFrom)
		p.ValidUntil = timePtr(validUntil)
		p.Description = description.String
		p.CreatedAt = parseTime(createdAt)
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// SavePromotion inserts or replaces a promotion by id.
func (s *Store) SavePromotion(ctx context.Context, p commission.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promotions (id, product_id, bonus_rate, valid_from, valid_until, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			bonus_rate = excluded.bonus_rate,
			valid_from = excluded.valid_from,
			valid_until = excluded.valid_until,
			description = excluded.description
	`, p.ID, p.ProductID, p.BonusRate.String(), nullTime(p.ValidFrom), nullTime(p.ValidUntil),
		nullString(p.Description), fmtTime(p.CreatedAt))
	return err
}
