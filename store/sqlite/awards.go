package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/awards"
	"github.com/warp/earnings-engine/delivery"
	"github.com/warp/earnings-engine/generic"
)

// =============================================================================
// AWARDS STORE (awards.Store interface)
// =============================================================================

// MonthStats aggregates earnings created before p.End and deliveries created
// within p. Every trainer with either is returned.
func (s *Store) MonthStats(ctx context.Context, p generic.Period) ([]awards.TrainerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type trainerAgg struct {
		stats        awards.TrainerStats
		orders       map[string]int // client -> orders up to p.End
		monthClients map[string]bool
	}
	aggs := make(map[string]*trainerAgg)
	get := func(id string) *trainerAgg {
		a, ok := aggs[id]
		if !ok {
			a = &trainerAgg{
				stats:        awards.TrainerStats{TrainerID: id, Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero},
				orders:       make(map[string]int),
				monthClients: make(map[string]bool),
			}
			aggs[id] = a
		}
		return a
	}

	start, end := fmtTime(p.Start), fmtTime(p.End)

	rows, err := s.db.QueryContext(ctx, `
		SELECT trainer_id, client_id, order_total, created_at
		FROM earnings
		WHERE created_at < ?
	`, end)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			trainerID, total, createdAt string
			clientID                    sql.NullString
		)
		if err := rows.Scan(&trainerID, &clientID, &total, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan earning stats: %w", err)
		}
		a := get(trainerID)
		amount := parseDecimal(total)
		a.stats.LifetimeRevenue = a.stats.LifetimeRevenue.Add(amount)
		if clientID.String != "" {
			a.orders[clientID.String]++
		}
		if createdAt >= start {
			a.stats.Revenue = a.stats.Revenue.Add(amount)
			if clientID.String != "" {
				a.monthClients[clientID.String] = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT trainer_id, status
		FROM deliveries
		WHERE created_at >= ? AND created_at < ?
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var trainerID, status string
		if err := rows.Scan(&trainerID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan delivery stats: %w", err)
		}
		a := get(trainerID)
		a.stats.Deliveries++
		if delivery.Status(status) == delivery.StatusConfirmed {
			a.stats.DeliveriesConfirmed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]awards.TrainerStats, 0, len(aggs))
	for _, a := range aggs {
		a.stats.LifetimeClients = len(a.orders)
		a.stats.Clients = len(a.monthClients)
		for client := range a.monthClients {
			if a.orders[client] > 1 {
				a.stats.RepeatClients++
			}
		}
		out = append(out, a.stats)
	}
	return out, nil
}

func (s *Store) InsertAward(ctx context.Context, a awards.Award) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trainer_awards (id, trainer_id, award_type, award_key, title,
			points, year, month, milestone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TrainerID, string(a.Type), a.Key(), a.Title, a.Points,
		a.Year, int(a.Month), a.Milestone, fmtTime(a.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert award: %w", err)
	}
	return rowsAffected(res)
}

func (s *Store) ListAwards(ctx context.Context, f awards.Filter) ([]awards.Award, error) {
	var (
		where []string
		args  []any
	)
	if f.TrainerID != "" {
		where = append(where, "trainer_id = ?")
		args = append(args, f.TrainerID)
	}
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, int(f.Month))
	}
	query := `SELECT id, trainer_id, award_type, title, points, year, month, milestone, created_at
		FROM trainer_awards`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY year DESC, month DESC, trainer_id ASC, award_type ASC, milestone ASC`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []awards.Award
	for rows.Next() {
		var (
			a                    awards.Award
			awardType, createdAt string
			month                int
		)
		if err := rows.Scan(&a.ID, &a.TrainerID, &awardType, &a.Title, &a.Points,
			&a.Year, &month, &a.Milestone, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan award: %w", err)
		}
		a.Type = awards.AwardType(awardType)
		a.Month = time.Month(month)
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAwardRun inserts or updates a run by id.
func (s *Store) SaveAwardRun(ctx context.Context, r awards.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO award_runs (id, year, month, status, awards_granted, points_granted,
			error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			awards_granted = excluded.awards_granted,
			points_granted = excluded.points_granted,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, r.ID, r.Year, int(r.Month), string(r.Status), r.AwardsGranted, r.PointsGranted,
		nullString(r.Error), fmtTime(r.StartedAt), nullTime(r.CompletedAt))
	return err
}

// LatestAwardRun returns nil, nil when the month was never processed.
func (s *Store) LatestAwardRun(ctx context.Context, year int, month time.Month) (*awards.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r                 awards.Run
		m                 int
		status, startedAt string
		errText, doneAt   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, year, month, status, awards_granted, points_granted, error, started_at, completed_at
		FROM award_runs
		WHERE year = ? AND month = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, year, int(month)).Scan(&r.ID, &r.Year, &m, &status, &r.AwardsGranted, &r.PointsGranted,
		&errText, &startedAt, &doneAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Month = time.Month(m)
	r.Status = awards.RunStatus(status)
	r.Error = errText.String
	r.StartedAt = parseTime(startedAt)
	r.CompletedAt = timePtr(doneAt)
	return &r, nil
}
