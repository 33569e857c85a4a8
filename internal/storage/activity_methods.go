package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/models"
)

// ========== Activity Log Methods ==========

// CreateActivityLog appends an activity log entry. Entries are never
// updated or deleted by the normal flow.
func (s *PostgresStore) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO activity_logs (
            id, created_at, user_id, device_id, event, details, ip_address
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.getDB().ExecContext(ctx, query,
		entry.ID, entry.CreatedAt, entry.UserID, entry.DeviceID,
		entry.Event, entry.Details, entry.IPAddress,
	)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// ListActivityLogs lists activity log entries with filters, newest first
func (s *PostgresStore) ListActivityLogs(ctx context.Context, filters ActivityLogFilters, limit, offset int) ([]*models.ActivityLog, int64, error) {
	query := "SELECT COUNT(*) FROM activity_logs WHERE 1=1"
	args := []interface{}{}
	argCount := 0

	if filters.UserID != nil {
		argCount++
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filters.UserID)
	}

	if filters.DeviceID != nil {
		argCount++
		query += fmt.Sprintf(" AND device_id = $%d", argCount)
		args = append(args, *filters.DeviceID)
	}

	if filters.Event != nil {
		argCount++
		query += fmt.Sprintf(" AND event = $%d", argCount)
		args = append(args, *filters.Event)
	}

	if filters.StartTime != nil {
		argCount++
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filters.StartTime)
	}

	if filters.EndTime != nil {
		argCount++
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filters.EndTime)
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT id, created_at, user_id, device_id, event, details, ip_address", 1)

	argCount++
	selectQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argCount)
	args = append(args, limit)

	argCount++
	selectQuery += fmt.Sprintf(" OFFSET $%d", argCount)
	args = append(args, offset)

	rows, err := s.getDB().QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*models.ActivityLog
	for rows.Next() {
		entry := &models.ActivityLog{}
		err := rows.Scan(
			&entry.ID, &entry.CreatedAt, &entry.UserID, &entry.DeviceID,
			&entry.Event, &entry.Details, &entry.IPAddress,
		)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, count, nil
}

// CountActivityEvents counts events of one kind for a device since a
// point in time. Used by the rolling-window anomaly alerts.
func (s *PostgresStore) CountActivityEvents(ctx context.Context, deviceID uuid.UUID, event string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM activity_logs
        WHERE device_id = $1 AND event = $2 AND created_at >= $3`

	var count int64
	err := s.getDB().QueryRowContext(ctx, query, deviceID, event, since).Scan(&count)
	return count, err
}
