// Package storage persists the registry cache and server status history in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveRegistry stores the last successfully loaded server list payload.
// The digest is kept as text since SQLite integers are signed.
func (r *Repository) SaveRegistry(source string, digest uint64, payload []byte) error {
	_, err := r.db.Exec(`
	INSERT INTO registry_cache (id, source, digest, payload, updated_at)
	VALUES (1, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		source = excluded.source,
		digest = excluded.digest,
		payload = excluded.payload,
		updated_at = excluded.updated_at
	WHERE registry_cache.digest != excluded.digest OR registry_cache.source != excluded.source;
	`, source, strconv.FormatUint(digest, 16), payload, time.Now())

	return err
}

// LoadRegistry returns the cached payload, or an empty payload when nothing is cached.
func (r *Repository) LoadRegistry() (string, []byte, error) {
	var (
		source  string
		payload []byte
	)

	err := r.db.QueryRow(`SELECT source, payload FROM registry_cache WHERE id = 1`).Scan(&source, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	return source, payload, nil
}

// RecordStatus upserts the status of one card. An "unknown" status never
// overwrites a settled one, and last_online only moves on online records.
func (r *Repository) RecordStatus(rec models.StatusRecord) error {
	query := `
	INSERT INTO server_status (
		card_id, name, base_url, status, players, instances,
		updates, first_seen, last_checked, last_online
	)
	VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	ON CONFLICT(card_id) DO UPDATE SET
		updates = updates + 1,
		name = excluded.name,
		base_url = excluded.base_url,
		last_checked = excluded.last_checked,

		status      = CASE WHEN excluded.status != 'unknown' THEN excluded.status ELSE server_status.status END,
		players     = CASE WHEN excluded.players IS NOT NULL THEN excluded.players ELSE server_status.players END,
		instances   = excluded.instances,
		last_online = CASE WHEN excluded.last_online IS NOT NULL THEN excluded.last_online ELSE server_status.last_online END;
	`

	if rec.LastChecked.IsZero() {
		rec.LastChecked = time.Now()
	}

	var lastOnline any
	if rec.Status == "online" {
		lastOnline = rec.LastChecked
	}

	var players any
	if rec.Players != nil {
		players = *rec.Players
	}

	// Use LastChecked as FirstSeen when inserting a new record
	_, err := r.db.Exec(query,
		rec.CardID, rec.Name, rec.BaseURL, rec.Status, players, rec.Instances,
		rec.LastChecked, rec.LastChecked, lastOnline,
	)

	return err
}

// GetStatuses returns all status records, most recently checked first.
func (r *Repository) GetStatuses() ([]models.StatusRecord, error) {
	rows, err := r.db.Query(`
		SELECT card_id, name, base_url, status, players, instances,
		       updates, first_seen, last_checked, last_online
		FROM server_status
		ORDER BY last_checked DESC, card_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []models.StatusRecord
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// GetStatus returns one status record, or nil when the card was never recorded.
func (r *Repository) GetStatus(cardID string) (*models.StatusRecord, error) {
	row := r.db.QueryRow(`
		SELECT card_id, name, base_url, status, players, instances,
		       updates, first_seen, last_checked, last_online
		FROM server_status
		WHERE card_id = ?
	`, cardID)

	rec, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// DeleteStatusesBefore removes records not checked since cutoff.
func (r *Repository) DeleteStatusesBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM server_status WHERE last_checked < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(s scanner) (models.StatusRecord, error) {
	var (
		rec        models.StatusRecord
		players    sql.NullFloat64
		lastOnline sql.NullTime
	)

	if err := s.Scan(
		&rec.CardID, &rec.Name, &rec.BaseURL, &rec.Status, &players, &rec.Instances,
		&rec.Updates, &rec.FirstSeen, &rec.LastChecked, &lastOnline,
	); err != nil {
		return rec, err
	}

	if players.Valid {
		n := players.Float64
		rec.Players = &n
	}
	if lastOnline.Valid {
		t := lastOnline.Time
		rec.LastOnline = &t
	}

	return rec, nil
}
