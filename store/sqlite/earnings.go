package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/generic"
)

// =============================================================================
// EARNINGS STORE (earnings.Store interface)
// =============================================================================

// InsertEarning writes the record and its lines in one transaction.
func (s *Store) InsertEarning(ctx context.Context, rec earnings.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO earnings (order_id, trainer_id, bundle_id, bundle_title, client_id, client_name,
				product_commission, service_revenue, total_earnings, order_total, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.OrderID, rec.TrainerID, nullString(rec.BundleID), nullString(rec.BundleTitle),
			nullString(rec.ClientID), nullString(rec.ClientName),
			rec.ProductCommission.String(), rec.ServiceRevenue.String(), rec.TotalEarnings.String(),
			rec.OrderTotal.String(), string(rec.Status), fmtTime(rec.CreatedAt), fmtTime(rec.CreatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				return generic.ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("failed to insert earning: %w", err)
		}

		for _, l := range rec.Lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO earning_lines (order_id, item_id, line_type, product_id, name,
					quantity, unit_price, amount, rate, earnings, promotion_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, rec.OrderID, l.ItemID, string(l.Type), nullString(l.ProductID), nullString(l.Name),
				l.Quantity, l.UnitPrice.String(), l.Amount.String(), l.Rate.String(),
				l.Earnings.String(), nullString(l.PromotionID))
			if err != nil {
				return fmt.Errorf("failed to insert earning line %s: %w", l.ItemID, err)
			}
		}
		return nil
	})
}

const earningColumns = `order_id, trainer_id, bundle_id, bundle_title, client_id, client_name,
	product_commission, service_revenue, total_earnings, order_total, status, created_at`

// GetEarning returns nil, nil for an order with no record.
func (s *Store) GetEarning(ctx context.Context, orderID string) (*earnings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+earningColumns+` FROM earnings WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	recs, err := scanEarnings(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	if err := s.attachLines(ctx, recs); err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// CountPriorClientOrders breaks created_at ties by rowid, which follows
// insertion order.
func (s *Store) CountPriorClientOrders(ctx context.Context, trainerID, clientID, orderID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM earnings e, (SELECT created_at, rowid AS seq FROM earnings WHERE order_id = ?) cur
		WHERE e.trainer_id = ? AND e.client_id = ?
		  AND (e.created_at < cur.created_at
		       OR (e.created_at = cur.created_at AND e.rowid < cur.seq))
	`, orderID, trainerID, clientID).Scan(&n)
	return n, err
}

// ListEarnings returns records created in [from, to), oldest first, with lines.
func (s *Store) ListEarnings(ctx context.Context, trainerID string, from, to time.Time) ([]earnings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+earningColumns+`
		FROM earnings
		WHERE trainer_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, order_id ASC
	`, trainerID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	recs, err := scanEarnings(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// PageEarnings returns a newest-first page without lines.
func (s *Store) PageEarnings(ctx context.Context, trainerID string, limit, offset int) ([]earnings.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM earnings WHERE trainer_id = ?`, trainerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+earningColumns+`
		FROM earnings
		WHERE trainer_id = ?
		ORDER BY created_at DESC, order_id DESC
		LIMIT ? OFFSET ?
	`, trainerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	recs, err := scanEarnings(rows)
	return recs, total, err
}

func (s *Store) UpdateEarningStatus(ctx context.Context, orderID string, from, to earnings.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE earnings SET status = ?, updated_at = ?
		WHERE order_id = ? AND status = ?
	`, string(to), fmtTime(time.Now()), orderID, string(from))
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

// attachLines loads the lines of recs. Caller holds the read lock and has
// closed the record rows.
func (s *Store) attachLines(ctx context.Context, recs []earnings.Record) error {
	if len(recs) == 0 {
		return nil
	}
	index := make(map[string]int, len(recs))
	args := make([]any, len(recs))
	for i, r := range recs {
		index[r.OrderID] = i
		args[i] = r.OrderID
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, item_id, line_type, product_id, name, quantity,
		       unit_price, amount, rate, earnings, promotion_id
		FROM earning_lines
		WHERE order_id IN (`+placeholders(len(recs))+`)
		ORDER BY order_id, item_id
	`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID, lineType                   string
			unitPrice, amount, rate, lineEarned string
			productID, name, promotionID        sql.NullString
			l                                   earnings.Line
		)
		if err := rows.Scan(&orderID, &l.ItemID, &lineType, &productID, &name, &l.Quantity,
			&unitPrice, &amount, &rate, &lineEarned, &promotionID); err != nil {
			return fmt.Errorf("failed to scan earning line: %w", err)
		}
		l.Type = earnings.LineType(lineType)
		l.ProductID, l.Name, l.PromotionID = productID.String, name.String, promotionID.String
		l.UnitPrice = parseDecimal(unitPrice)
		l.Amount = parseDecimal(amount)
		l.Rate = parseDecimal(rate)
		l.Earnings = parseDecimal(lineEarned)
		i := index[orderID]
		recs[i].Lines = append(recs[i].Lines, l)
	}
	return rows.Err()
}

// scanEarnings drains and closes rows.
func scanEarnings(rows *sql.Rows) ([]earnings.Record, error) {
	defer rows.Close()

	var out []earnings.Record
	for rows.Next() {
		var (
			r                                      earnings.Record
			bundleID, bundleTitle, clientID, cname sql.NullString
			product, service, total, orderTotal    string
			status, createdAt                      string
		)
		if err := rows.Scan(&r.OrderID, &r.TrainerID, &bundleID, &bundleTitle, &clientID, &cname,
			&product, &service, &total, &orderTotal, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan earning: %w", err)
		}
		r.BundleID, r.BundleTitle = bundleID.String, bundleTitle.String
		r.ClientID, r.ClientName = clientID.String, cname.String
		r.ProductCommission = parseDecimal(product)
		r.ServiceRevenue = parseDecimal(service)
		r.TotalEarnings = parseDecimal(total)
		r.OrderTotal = parseDecimal(orderTotal)
		r.Status = earnings.Status(status)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
