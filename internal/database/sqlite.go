package database

import (
	"context"
	"crypto-alert-notifier/internal/types"
	"database/sql"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps alerts in an embedded SQLite file.
type SQLiteRepository struct {
	DB *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	createTableQuery := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		crypto_symbol TEXT NOT NULL,
		target_price REAL NOT NULL,
		condition INTEGER NOT NULL,
		notification_data TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_fulfilled INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(createTableQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create alerts table: %w", err)
	}

	createIndexQuery := `CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts (is_active);`
	if _, err := db.Exec(createIndexQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create alerts index: %w", err)
	}

	log.Debug("Database initialized successfully.")
	return &SQLiteRepository{DB: db}, nil
}

// InsertAlert saves a new active alert and returns its id.
func (r *SQLiteRepository) InsertAlert(ctx context.Context, a types.Alert) (string, error) {
	query := `
	INSERT INTO alerts (user_id, username, crypto_symbol, target_price, condition, notification_data, is_active, is_fulfilled, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, 1, 0, ?);`

	res, err := r.DB.ExecContext(ctx, query, a.UserID, a.Username, a.Symbol, a.TargetPrice, a.Condition, a.NotificationData, now())
	if err != nil {
		return "", fmt.Errorf("failed to insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read alert id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// GetAlert fetches one alert regardless of its state.
func (r *SQLiteRepository) GetAlert(ctx context.Context, id string) (types.Alert, error) {
	query := `
	SELECT id, user_id, username, crypto_symbol, target_price, condition, notification_data, is_active, is_fulfilled, updated_at
	FROM alerts WHERE id = ?;`

	return scanAlert(r.DB.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]types.Alert, error) {
	query := `
	SELECT id, user_id, username, crypto_symbol, target_price, condition, notification_data, is_active, is_fulfilled, updated_at
	FROM alerts WHERE is_active = 1 ORDER BY id;`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		if usable(a) {
			alerts = append(alerts, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

func (r *SQLiteRepository) Fulfill(ctx context.Context, id string) error {
	query := `
	UPDATE alerts SET is_active = 0, is_fulfilled = 1, updated_at = ?
	WHERE id = ? AND is_active = 1;`

	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		log.Debugf("Alert id %q is not a sqlite row id, nothing to fulfill", id)
		return nil
	}

	res, err := r.DB.ExecContext(ctx, query, now(), key)
	if err != nil {
		return fmt.Errorf("failed to fulfill alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Debugf("Alert %s was already fulfilled or no longer exists", id)
	}
	return nil
}

func (r *SQLiteRepository) Close(context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (types.Alert, error) {
	var (
		a         types.Alert
		id        int64
		updatedAt sql.NullTime
	)
	err := row.Scan(&id, &a.UserID, &a.Username, &a.Symbol, &a.TargetPrice, &a.Condition,
		&a.NotificationData, &a.IsActive, &a.IsFulfilled, &updatedAt)
	if err != nil {
		return types.Alert{}, fmt.Errorf("failed to scan row: %w", err)
	}
	a.ID = strconv.FormatInt(id, 10)
	if updatedAt.Valid {
		a.UpdatedAt = updatedAt.Time.UTC()
	}
	return a, nil
}
