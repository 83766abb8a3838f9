package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/earnings-engine/adpartner"
)

// =============================================================================
// AD PARTNERSHIP STORE (adpartner.Store interface)
// =============================================================================

func (s *Store) InsertPartnership(ctx context.Context, p adpartner.Partnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_partnerships (id, trainer_id, business_id, package_tier, monthly_fee,
			trainer_commission_rate, bonus_points_awarded, status, start_date, end_date,
			renewal_date, auto_renew, approved_by, approved_at, cancelled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.TrainerID, p.BusinessID, string(p.PackageTier), p.MonthlyFee.String(),
		p.TrainerCommissionRate.String(), p.BonusPointsAwarded, string(p.Status),
		fmtTime(p.StartDate), fmtTime(p.EndDate), fmtTime(p.RenewalDate), p.AutoRenew,
		nullString(p.ApprovedBy), nullTime(p.ApprovedAt), nullTime(p.CancelledAt), fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert partnership: %w", err)
	}
	return nil
}

const partnershipColumns = `id, trainer_id, business_id, package_tier, monthly_fee,
	trainer_commission_rate, bonus_points_awarded, status, start_date, end_date,
	renewal_date, auto_renew, approved_by, approved_at, cancelled_at, created_at`

// GetPartnership returns nil, nil for an unknown id.
func (s *Store) GetPartnership(ctx context.Context, id string) (*adpartner.Partnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+partnershipColumns+` FROM ad_partnerships WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	ps, err := scanPartnerships(rows)
	if err != nil || len(ps) == 0 {
		return nil, err
	}
	return &ps[0], nil
}

func (s *Store) ListPartnerships(ctx context.Context, f adpartner.Filter) ([]adpartner.Partnership, error) {
	var (
		where []string
		args  []any
	)
	if f.TrainerID != "" {
		where = append(where, "trainer_id = ?")
		args = append(args, f.TrainerID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + partnershipColumns + ` FROM ad_partnerships`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanPartnerships(rows)
}

func (s *Store) ActivatePartnership(ctx context.Context, id, approverID string, at time.Time, first adpartner.Earning) (bool, error) {
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE ad_partnerships SET status = ?, approved_by = ?, approved_at = ?
			WHERE id = ? AND status = ?
		`, string(adpartner.StatusActive), approverID, fmtTime(at), id, string(adpartner.StatusPending))
		if err != nil {
			return fmt.Errorf("failed to activate partnership: %w", err)
		}
		if applied, err = rowsAffected(res); err != nil || !applied {
			return err
		}
		_, err = insertAdEarning(ctx, tx, first)
		return err
	})
	return applied, err
}

func (s *Store) CancelPartnership(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE ad_partnerships SET status = ?, cancelled_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, string(adpartner.StatusCancelled), fmtTime(at), id,
		string(adpartner.StatusPending), string(adpartner.StatusActive))
	if err != nil {
		return false, fmt.Errorf("failed to cancel partnership: %w", err)
	}
	return rowsAffected(res)
}

func (s *Store) RenewPartnership(ctx context.Context, id string, dueAt time.Time, next adpartner.Earning) (bool, error) {
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE ad_partnerships SET end_date = MAX(end_date, ?), renewal_date = ?
			WHERE id = ? AND status = ? AND renewal_date = ?
		`, fmtTime(next.PeriodEnd), fmtTime(next.PeriodEnd), id,
			string(adpartner.StatusActive), fmtTime(dueAt))
		if err != nil {
			return fmt.Errorf("failed to renew partnership: %w", err)
		}
		if applied, err = rowsAffected(res); err != nil || !applied {
			return err
		}
		_, err = insertAdEarning(ctx, tx, next)
		return err
	})
	return applied, err
}

// insertAdEarning ignores a period that already has an earning.
func insertAdEarning(ctx context.Context, db execer, e adpartner.Earning) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ad_earnings (id, trainer_id, partnership_id, business_id,
			period_start, period_end, monthly_fee, commission_rate, commission_earned,
			bonus_points, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TrainerID, e.PartnershipID, e.BusinessID,
		fmtTime(e.PeriodStart), fmtTime(e.PeriodEnd), e.MonthlyFee.String(), e.CommissionRate.String(),
		e.CommissionEarned.String(), e.BonusPoints, string(e.Status), fmtTime(e.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert ad earning: %w", err)
	}
	return rowsAffected(res)
}

// ListAdEarnings returns the trainer's ad earnings by period.
func (s *Store) ListAdEarnings(ctx context.Context, trainerID string) ([]adpartner.Earning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trainer_id, partnership_id, business_id, period_start, period_end,
		       monthly_fee, commission_rate, commission_earned, bonus_points, status, created_at
		FROM ad_earnings
		WHERE trainer_id = ?
		ORDER BY period_start ASC, partnership_id ASC
	`, trainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []adpartner.Earning
	for rows.Next() {
		var (
			e                           adpartner.Earning
			start, end, status, created string
			fee, rate, earned           string
		)
		if err := rows.Scan(&e.ID, &e.TrainerID, &e.PartnershipID, &e.BusinessID, &start, &end,
			&fee, &rate, &earned, &e.BonusPoints, &status, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ad earning: %w", err)
		}
		e.PeriodStart, e.PeriodEnd = parseTime(start), parseTime(end)
		e.MonthlyFee, e.CommissionRate = parseDecimal(fee), parseDecimal(rate)
		e.CommissionEarned = parseDecimal(earned)
		e.Status = adpartner.EarningStatus(status)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanPartnerships drains and closes rows.
func scanPartnerships(rows *sql.Rows) ([]adpartner.Partnership, error) {
	defer rows.Close()

	var out []adpartner.Partnership
	for rows.Next() {
		var (
			p                                adpartner.Partnership
			tier, fee, rate, status          string
			start, end, renewal, created     string
			approvedBy, approvedAt, cancelAt sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.TrainerID, &p.BusinessID, &tier, &fee, &rate,
			&p.BonusPointsAwarded, &status, &start, &end, &renewal, &p.AutoRenew,
			&approvedBy, &approvedAt, &cancelAt, &created); err != nil {
			return nil, fmt.Errorf("failed to scan partnership: %w", err)
		}
		p.PackageTier = adpartner.PackageTier(tier)
		p.MonthlyFee, p.TrainerCommissionRate = parseDecimal(fee), parseDecimal(rate)
		p.Status = adpartner.Status(status)
		p.StartDate, p.EndDate, p.RenewalDate = parseTime(start), parseTime(end), parseTime(renewal)
		p.ApprovedBy = approvedBy.String
		p.ApprovedAt, p.CancelledAt = timePtr(approvedAt), timePtr(cancelAt)
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}
