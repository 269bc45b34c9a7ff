package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/printhost/marlineeprom/internal/models"
)

// ErrSnapshotNotFound is returned when a snapshot does not exist
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore handles snapshot persistence
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new snapshot store
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save persists a snapshot. A zero ID gets a fresh UUID assigned.
func (s *SnapshotStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}

	fieldsJSON, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `
		INSERT INTO eeprom_snapshots (id, name, firmware_identity, source, raw_text, fields)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err = s.db.QueryRowContext(ctx, query,
		snap.ID, snap.Name, nullString(snap.FirmwareIdentity),
		string(snap.Source), snap.RawText, fieldsJSON,
	).Scan(&snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// Get retrieves a snapshot by ID
func (s *SnapshotStore) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	query := `
		SELECT id, name, firmware_identity, source, raw_text, fields, created_at
		FROM eeprom_snapshots
		WHERE id = $1`

	snap, err := s.scanSnapshot(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return snap, nil
}

// List returns snapshots ordered newest first
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]*models.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, name, firmware_identity, source, raw_text, fields, created_at
		FROM eeprom_snapshots
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.Snapshot
	for rows.Next() {
		snap, err := s.scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// Delete removes a snapshot by ID
func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM eeprom_snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrSnapshotNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SnapshotStore) scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var snap models.Snapshot
	var identity sql.NullString
	var source string
	var fieldsJSON []byte

	err := row.Scan(&snap.ID, &snap.Name, &identity, &source,
		&snap.RawText, &fieldsJSON, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}

	snap.FirmwareIdentity = identity.String
	snap.Source = models.SnapshotSource(source)

	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &snap.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
		}
	}

	return &snap, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
