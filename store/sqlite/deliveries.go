package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/warp/earnings-engine/delivery"
)

// =============================================================================
// DELIVERY STORE (delivery.Store interface)
// =============================================================================

// InsertDeliveries creates missing deliveries; existing (order, item) pairs
// are left untouched.
func (s *Store) InsertDeliveries(ctx context.Context, ds []delivery.Delivery) (int, error) {
	created := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range ds {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO deliveries (id, order_id, order_item_id, trainer_id, client_id,
					product_id, product_name, quantity, status, scheduled_date, reschedule_status,
					created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, d.ID, d.OrderID, d.OrderItemID, d.TrainerID, nullString(d.ClientID),
				nullString(d.ProductID), nullString(d.ProductName), d.Quantity, string(d.Status),
				nullTime(d.ScheduledDate), string(d.RescheduleStatus),
				fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
			if err != nil {
				return fmt.Errorf("failed to insert delivery for item %s: %w", d.OrderItemID, err)
			}
			if ok, err := rowsAffected(res); err != nil {
				return err
			} else if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

const deliveryColumns = `id, order_id, order_item_id, trainer_id, client_id, product_id, product_name,
	quantity, status, scheduled_date, delivered_at, confirmed_at, disputed_at,
	delivery_method, tracking_number, delivery_notes, client_notes, issue_notes,
	resolved_at, resolved_by, resolution_type, resolution_notes,
	reschedule_status, proposed_date, reschedule_reason, reschedule_response, reschedule_requested_at,
	created_at, updated_at`

// GetDelivery returns nil, nil for an unknown id.
func (s *Store) GetDelivery(ctx context.Context, id string) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	ds, err := scanDeliveries(rows)
	if err != nil || len(ds) == 0 {
		return nil, err
	}
	return &ds[0], nil
}

// UpdateDelivery is a single UPDATE whose WHERE clause carries the guard.
func (s *Store) UpdateDelivery(ctx context.Context, id string, g delivery.Guard, c delivery.Change) (bool, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if c.Status != nil {
		set("status", string(*c.Status))
	}
	if c.DeliveredAt != nil {
		set("delivered_at", nullTime(c.DeliveredAt))
	}
	if c.ConfirmedAt != nil {
		set("confirmed_at", nullTime(c.ConfirmedAt))
	}
	if c.DisputedAt != nil {
		set("disputed_at", nullTime(c.DisputedAt))
	}
	if c.DeliveryMethod != nil {
		set("delivery_method", nullString(*c.DeliveryMethod))
	}
	if c.TrackingNumber != nil {
		set("tracking_number", nullString(*c.TrackingNumber))
	}
	if c.DeliveryNotes != nil {
		set("delivery_notes", nullString(*c.DeliveryNotes))
	}
	if c.ClientNotes != nil {
		set("client_notes", nullString(*c.ClientNotes))
	}
	if c.IssueNotes != nil {
		set("issue_notes", nullString(*c.IssueNotes))
	}
	if c.ResolvedAt != nil {
		set("resolved_at", nullTime(c.ResolvedAt))
	}
	if c.ResolvedBy != nil {
		set("resolved_by", nullString(*c.ResolvedBy))
	}
	if c.ResolutionType != nil {
		set("resolution_type", nullString(string(*c.ResolutionType)))
	}
	if c.ResolutionNotes != nil {
		set("resolution_notes", nullString(*c.ResolutionNotes))
	}
	if c.ScheduleFromProposal {
		sets = append(sets, "scheduled_date = proposed_date")
	}
	if c.RescheduleStatus != nil {
		set("reschedule_status", string(*c.RescheduleStatus))
	}
	if c.ProposedDate != nil {
		set("proposed_date", nullTime(c.ProposedDate))
	}
	if c.RescheduleReason != nil {
		set("reschedule_reason", nullString(*c.RescheduleReason))
	}
	if c.RescheduleResponse != nil {
		set("reschedule_response", nullString(*c.RescheduleResponse))
	}
	if c.RescheduleRequestedAt != nil {
		set("reschedule_requested_at", nullTime(c.RescheduleRequestedAt))
	}
	set("updated_at", fmtTime(c.UpdatedAt))

	where := []string{"id = ?"}
	args = append(args, id)
	if len(g.From) > 0 {
		where = append(where, "status IN ("+placeholders(len(g.From))+")")
		for _, st := range g.From {
			args = append(args, string(st))
		}
	}
	if g.TrainerID != "" {
		where = append(where, "trainer_id = ?")
		args = append(args, g.TrainerID)
	}
	if g.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, g.ClientID)
	}
	if len(g.Reschedule) > 0 {
		where = append(where, "reschedule_status IN ("+placeholders(len(g.Reschedule))+")")
		for _, rs := range g.Reschedule {
			args = append(args, string(rs))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET `+strings.Join(sets, ", ")+` WHERE `+strings.Join(where, " AND "),
		args...)
	if err != nil {
		return false, fmt.Errorf("failed to update delivery: %w", err)
	}
	return rowsAffected(res)
}

// ListDeliveries returns matching deliveries, newest first.
func (s *Store) ListDeliveries(ctx context.Context, f delivery.Filter) ([]delivery.Delivery, error) {
	var (
		where []string
		args  []any
	)
	if f.TrainerID != "" {
		where = append(where, "trainer_id = ?")
		args = append(args, f.TrainerID)
	}
	if f.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.OrderID != "" {
		where = append(where, "order_id = ?")
		args = append(args, f.OrderID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if f.Reschedule != "" {
		where = append(where, "reschedule_status = ?")
		args = append(args, string(f.Reschedule))
	}

	query := `SELECT ` + deliveryColumns + ` FROM deliveries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

// scanDeliveries drains and closes rows.
func scanDeliveries(rows *sql.Rows) ([]delivery.Delivery, error) {
	defer rows.Close()

	var out []delivery.Delivery
	for rows.Next() {
		var (
			d                                                   delivery.Delivery
			status, rescheduleStatus, createdAt, updatedAt      string
			clientID, productID, productName                    sql.NullString
			scheduled, delivered, confirmed, disputed, resolved sql.NullString
			method, tracking, dNotes, cNotes, iNotes            sql.NullString
			resolvedBy, resolutionType, resolutionNotes         sql.NullString
			proposed, reason, response, requestedAt             sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.OrderID, &d.OrderItemID, &d.TrainerID, &clientID, &productID, &productName,
			&d.Quantity, &status, &scheduled, &delivered, &confirmed, &disputed,
			&method, &tracking, &dNotes, &cNotes, &iNotes,
			&resolved, &resolvedBy, &resolutionType, &resolutionNotes,
			&rescheduleStatus, &proposed, &reason, &response, &requestedAt,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.ClientID, d.ProductID, d.ProductName = clientID.String, productID.String, productName.String
		d.Status = delivery.Status(status)
		d.ScheduledDate = timePtr(scheduled)
		d.DeliveredAt = timePtr(delivered)
		d.ConfirmedAt = timePtr(confirmed)
		d.DisputedAt = timePtr(disputed)
		d.DeliveryMethod, d.TrackingNumber = method.String, tracking.String
		d.DeliveryNotes, d.ClientNotes, d.IssueNotes = dNotes.String, cNotes.String, iNotes.String
		d.ResolvedAt = timePtr(resolved)
		d.ResolvedBy = resolvedBy.String
		d.ResolutionType = delivery.ResolutionType(resolutionType.String)
		d.ResolutionNotes = resolutionNotes.String
		d.RescheduleStatus = delivery.RescheduleStatus(rescheduleStatus)
		d.ProposedDate = timePtr(proposed)
		d.RescheduleReason, d.RescheduleResponse = reason.String, response.String
		d.RescheduleRequestedAt = timePtr(requestedAt)
		d.CreatedAt, d.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}
