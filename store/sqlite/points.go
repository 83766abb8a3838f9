package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/rewards"
)

// =============================================================================
// POINTS STORE (rewards.Store interface)
// =============================================================================

// ApplyPoints reads the account, runs fn and writes the account and the new
// transaction in one SQL transaction under the write lock. A known
// idempotency key short-circuits with the stored transaction and
// ErrDuplicateIdempotencyKey.
func (s *Store) ApplyPoints(ctx context.Context, trainerID, idempotencyKey string, fn rewards.ApplyFunc) (rewards.PointTransaction, rewards.Account, error) {
	var (
		out  rewards.PointTransaction
		acct rewards.Account
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getAccount(ctx, tx, trainerID)
		if err != nil {
			return err
		}

		if idempotencyKey != "" {
			existing, err := transactionByKey(ctx, tx, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				out = *existing
				if current != nil {
					acct = *current
				}
				return generic.ErrDuplicateIdempotencyKey
			}
		}

		var start rewards.Account
		exists := current != nil
		if exists {
			start = *current
		}
		next, ptx, err := fn(start, exists)
		if err != nil {
			return err
		}

		if err := upsertAccount(ctx, tx, next, exists); err != nil {
			return err
		}
		if err := appendPointTx(ctx, tx, ptx); err != nil {
			return err
		}
		out, acct = ptx, next
		return nil
	})
	return out, acct, err
}

func getAccount(ctx context.Context, db execer, trainerID string) (*rewards.Account, error) {
	var (
		a                    rewards.Account
		tier, ytdRevenue     string
		createdAt, updatedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT trainer_id, total_points, lifetime_points, current_tier,
		       ytd_points, ytd_revenue, ytd_year, created_at, updated_at
		FROM points_accounts WHERE trainer_id = ?
	`, trainerID).Scan(&a.TrainerID, &a.TotalPoints, &a.LifetimePoints, &tier,
		&a.YearToDatePoints, &ytdRevenue, &a.YearToDateYear, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load points account: %w", err)
	}
	a.CurrentTier = rewards.Tier(tier)
	a.YearToDateRevenue = parseDecimal(ytdRevenue)
	a.CreatedAt, a.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return &a, nil
}

func upsertAccount(ctx context.Context, db execer, a rewards.Account, exists bool) error {
	var err error
	if exists {
		_, err = db.ExecContext(ctx, `
			UPDATE points_accounts SET
				total_points = ?, lifetime_points = ?, current_tier = ?,
				ytd_points = ?, ytd_revenue = ?, ytd_year = ?, updated_at = ?
			WHERE trainer_id = ?
		`, a.TotalPoints, a.LifetimePoints, string(a.CurrentTier),
			a.YearToDatePoints, a.YearToDateRevenue.String(), a.YearToDateYear, fmtTime(a.UpdatedAt),
			a.TrainerID)
	} else {
		_, err = db.ExecContext(ctx, `
			INSERT INTO points_accounts (trainer_id, total_points, lifetime_points, current_tier,
				ytd_points, ytd_revenue, ytd_year, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.TrainerID, a.TotalPoints, a.LifetimePoints, string(a.CurrentTier),
			a.YearToDatePoints, a.YearToDateRevenue.String(), a.YearToDateYear,
			fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	}
	if err != nil {
		return fmt.Errorf("failed to save points account: %w", err)
	}
	return nil
}

func appendPointTx(ctx context.Context, db execer, t rewards.PointTransaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO point_transactions (id, trainer_id, transaction_type, points,
			reference_type, reference_id, description, balance_before, balance_after,
			idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.TrainerID, string(t.TransactionType), t.Points,
		nullString(t.ReferenceType), nullString(t.ReferenceID), nullString(t.Description),
		t.BalanceBefore, t.BalanceAfter, nullString(t.IdempotencyKey), fmtTime(t.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append point transaction: %w", err)
	}
	return nil
}

const pointTxColumns = `id, trainer_id, transaction_type, points, reference_type, reference_id,
	description, balance_before, balance_after, idempotency_key, created_at`

func transactionByKey(ctx context.Context, db execer, key string) (*rewards.PointTransaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+pointTxColumns+` FROM point_transactions WHERE idempotency_key = ?`, key)
	if err != nil {
		return nil, err
	}
	txs, err := scanPointTxs(rows)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

func (s *Store) GetAccount(ctx context.Context, trainerID string) (*rewards.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, trainerID)
}

// ListPointTransactions returns a newest-first page and the total count.
func (s *Store) ListPointTransactions(ctx context.Context, trainerID string, limit, offset int) ([]rewards.PointTransaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM point_transactions WHERE trainer_id = ?`, trainerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pointTxColumns+`
		FROM point_transactions
		WHERE trainer_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`, trainerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	txs, err := scanPointTxs(rows)
	return txs, total, err
}

// PointTransactionsInOrder returns every transaction of the trainer, oldest
// first, in chain order.
func (s *Store) PointTransactionsInOrder(ctx context.Context, trainerID string) ([]rewards.PointTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pointTxColumns+` FROM point_transactions WHERE trainer_id = ? ORDER BY seq ASC
	`, trainerID)
	if err != nil {
		return nil, err
	}
	return scanPointTxs(rows)
}

// scanPointTxs drains and closes rows.
func scanPointTxs(rows *sql.Rows) ([]rewards.PointTransaction, error) {
	defer rows.Close()

	var out []rewards.PointTransaction
	for rows.Next() {
		var (
			t                                 rewards.PointTransaction
			txType, createdAt                 string
			refType, refID, desc, idempotency sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TrainerID, &txType, &t.Points, &refType, &refID,
			&desc, &t.BalanceBefore, &t.BalanceAfter, &idempotency, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan point transaction: %w", err)
		}
		t.TransactionType = rewards.TransactionType(txType)
		t.ReferenceType, t.ReferenceID = refType.String, refID.String
		t.Description, t.IdempotencyKey = desc.String, idempotency.String
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}
