package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shashwathi05/deskhop/internal/models"
)

// ========== Device Methods ==========

const deviceColumns = `id, created_at, updated_at, user_id, name, os_version,
       user_agent, platform, cpu_threads, screen, timezone, ip_address,
       fingerprint, risk_score, status, compliant`

// CreateDevice creates a new device. The unique index on
// (user_id, fingerprint) turns a concurrent double-create into
// ErrDuplicateKey.
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
        INSERT INTO devices (
            id, created_at, updated_at, user_id, name, os_version,
            user_agent, platform, cpu_threads, screen, timezone,
            ip_address, fingerprint, risk_score, status, compliant
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.CreatedAt, device.UpdatedAt, device.UserID,
		device.Name, device.OSVersion, device.UserAgent, device.Platform,
		device.CPUThreads, device.Screen, device.Timezone, device.IPAddress,
		device.Fingerprint, device.RiskScore, device.Status, device.Compliant,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

func scanDevice(row interface{ Scan(...interface{}) error }) (*models.Device, error) {
	device := &models.Device{}

	err := row.Scan(
		&device.ID, &device.CreatedAt, &device.UpdatedAt, &device.UserID,
		&device.Name, &device.OSVersion, &device.UserAgent, &device.Platform,
		&device.CPUThreads, &device.Screen, &device.Timezone,
		&device.IPAddress, &device.Fingerprint, &device.RiskScore,
		&device.Status, &device.Compliant,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return device, nil
}

// GetDevice gets a device by ID
func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1` + s.forUpdate()
	return scanDevice(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceByFingerprint gets a device by its natural dedup key
func (s *PostgresStore) GetDeviceByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
        WHERE user_id = $1 AND fingerprint = $2` + s.forUpdate()
	return scanDevice(s.getDB().QueryRowContext(ctx, query, userID, fingerprint))
}

// GetLatestDevice gets the user's most recently created device
func (s *PostgresStore) GetLatestDevice(ctx context.Context, userID uuid.UUID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
        WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1` + s.forUpdate()
	return scanDevice(s.getDB().QueryRowContext(ctx, query, userID))
}

// UpdateDevice updates a device
func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()

	query := `
        UPDATE devices SET
            updated_at = $2, name = $3, os_version = $4, user_agent = $5,
            platform = $6, cpu_threads = $7, screen = $8, timezone = $9,
            ip_address = $10, fingerprint = $11, risk_score = $12,
            status = $13, compliant = $14
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.UpdatedAt, device.Name, device.OSVersion,
		device.UserAgent, device.Platform, device.CPUThreads, device.Screen,
		device.Timezone, device.IPAddress, device.Fingerprint,
		device.RiskScore, device.Status, device.Compliant,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteDevice deletes a device by ID
func (s *PostgresStore) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListDevices lists devices, newest first, optionally scoped to one user
func (s *PostgresStore) ListDevices(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error) {
	where := ""
	args := []interface{}{}
	if userID != nil {
		where = " WHERE user_id = $1"
		args = append(args, *userID)
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM devices"+where, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + deviceColumns + ` FROM devices` + where +
		` ORDER BY created_at DESC`
	if userID != nil {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, device)
	}

	return devices, count, nil
}

// CountDevices counts all devices and the non-compliant subset
func (s *PostgresStore) CountDevices(ctx context.Context) (total, pending int64, err error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE compliant = false) FROM devices`
	err = s.getDB().QueryRowContext(ctx, query).Scan(&total, &pending)
	return total, pending, err
}

// CountDeviceOwners counts distinct users that registered at least one device
func (s *PostgresStore) CountDeviceOwners(ctx context.Context) (int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_id) FROM devices`).Scan(&count)
	return count, err
}
