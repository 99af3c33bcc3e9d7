package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/hookline/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			events TEXT NOT NULL DEFAULT '[]',
			active INTEGER NOT NULL DEFAULT 1,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_success_at DATETIME,
			last_failure_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
			event TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 3,
			response_status_code INTEGER,
			response_body TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			delivered_at DATETIME,
			next_retry_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_user ON endpoints(user_id, active)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_endpoint ON deliveries(endpoint_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_retry ON deliveries(status, next_retry_at) WHERE status IN ('pending', 'retrying', 'in_progress')`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Endpoints ---

func (s *SQLiteStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	events, _ := json.Marshal(ep.Events)
	active := 0
	if ep.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, user_id, name, url, secret, events, active, failure_count, last_success_at, last_failure_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.UserID, ep.Name, ep.URL, ep.Secret, string(events), active, ep.FailureCount, ep.LastSuccessAt, ep.LastFailureAt, ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanEndpoint(row interface{ Scan(...interface{}) error }) (*models.Endpoint, error) {
	var ep models.Endpoint
	var events string
	var active int
	err := row.Scan(&ep.ID, &ep.UserID, &ep.Name, &ep.URL, &ep.Secret, &events, &active, &ep.FailureCount, &ep.LastSuccessAt, &ep.LastFailureAt, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(events), &ep.Events)
	ep.Active = active == 1
	return &ep, nil
}

const endpointCols = `id, user_id, name, url, secret, events, active, failure_count, last_success_at, last_failure_at, created_at, updated_at`

func (s *SQLiteStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointCols+` FROM endpoints WHERE id = ?`, id)
	ep, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStorage) ListEndpoints(ctx context.Context, userID string) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointCols+` FROM endpoints WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, rows.Err()
}

func (s *SQLiteStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	events, _ := json.Marshal(ep.Events)
	active := 0
	if ep.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET name = ?, url = ?, events = ?, active = ?, updated_at = ? WHERE id = ?`,
		ep.Name, ep.URL, string(events), active, time.Now().UTC(), ep.ID,
	)
	return err
}

func (s *SQLiteStorage) UpdateEndpointSecret(ctx context.Context, id, secret string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStorage) DeleteEndpoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) ListSubscribedEndpoints(ctx context.Context, userID, event string) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointCols+` FROM endpoints
		 WHERE user_id = ? AND active = 1 AND failure_count < ?
		 ORDER BY created_at DESC`,
		userID, models.FailureThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		// Subscription is an exact match against the stored event set;
		// the JSON column is filtered here rather than in SQL.
		if ep.Subscribed(event) {
			endpoints = append(endpoints, *ep)
		}
	}
	return endpoints, rows.Err()
}

func (s *SQLiteStorage) ResetEndpointFailures(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET failure_count = 0, last_success_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	return err
}

func (s *SQLiteStorage) IncrementEndpointFailures(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET failure_count = failure_count + 1, last_failure_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	return err
}

// --- Deliveries ---

const deliveryCols = `id, endpoint_id, event, payload, status, attempt_count, max_attempts, response_status_code, response_body, error_message, created_at, delivered_at, next_retry_at`

func (s *SQLiteStorage) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, endpoint_id, event, payload, status, attempt_count, max_attempts, response_body, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.EndpointID, d.Event, string(d.Payload), d.Status, d.AttemptCount, d.MaxAttempts, d.ResponseBody, d.ErrorMessage, d.CreatedAt, d.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanDelivery(row interface{ Scan(...interface{}) error }) (*models.Delivery, error) {
	var d models.Delivery
	var payload string
	err := row.Scan(&d.ID, &d.EndpointID, &d.Event, &payload, &d.Status, &d.AttemptCount, &d.MaxAttempts, &d.ResponseStatusCode, &d.ResponseBody, &d.ErrorMessage, &d.CreatedAt, &d.DeliveredAt, &d.NextRetryAt)
	if err != nil {
		return nil, err
	}
	d.Payload = json.RawMessage(payload)
	return &d, nil
}

func (s *SQLiteStorage) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deliveryCols+` FROM deliveries WHERE id = ?`, id)
	d, err := s.scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStorage) ListDeliveries(ctx context.Context, f DeliveryFilter) ([]models.Delivery, error) {
	query := `SELECT d.id, d.endpoint_id, d.event, d.payload, d.status, d.attempt_count, d.max_attempts, d.response_status_code, d.response_body, d.error_message, d.created_at, d.delivered_at, d.next_retry_at
		 FROM deliveries d JOIN endpoints e ON d.endpoint_id = e.id WHERE 1=1`
	var args []interface{}

	if f.UserID != "" {
		query += ` AND e.user_id = ?`
		args = append(args, f.UserID)
	}
	if f.EndpointID != "" {
		query += ` AND d.endpoint_id = ?`
		args = append(args, f.EndpointID)
	}
	if f.Status != "" {
		query += ` AND d.status = ?`
		args = append(args, f.Status)
	}
	if f.Event != "" {
		query += ` AND d.event = ?`
		args = append(args, f.Event)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY d.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []models.Delivery
	for rows.Next() {
		d, err := s.scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func (s *SQLiteStorage) ClaimDelivery(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		models.DeliveryInProgress, time.Now().UTC(), id, models.DeliveryPending, models.DeliveryRetrying,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStorage) FinishDelivery(ctx context.Context, d *models.Delivery) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, attempt_count = ?, response_status_code = ?, response_body = ?, error_message = ?, delivered_at = ?, next_retry_at = ?, updated_at = ? WHERE id = ?`,
		d.Status, d.AttemptCount, d.ResponseStatusCode, d.ResponseBody, d.ErrorMessage, d.DeliveredAt, d.NextRetryAt, time.Now().UTC(), d.ID,
	)
	return err
}

func (s *SQLiteStorage) ResetDelivery(ctx context.Context, id string) (bool, error) {
	// An in_progress claim is excluded: resetting a delivery while a
	// worker holds its claim would let a second worker claim it again and
	// POST the same logical delivery twice.
	res, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, attempt_count = 0, response_status_code = NULL, response_body = '', error_message = '', next_retry_at = NULL, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		models.DeliveryPending, time.Now().UTC(), id,
		models.DeliveryFailed, models.DeliveryRetrying, models.DeliveryPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// --- Sweeper queries ---

func (s *SQLiteStorage) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.listDeliveryIDs(ctx,
		`SELECT id FROM deliveries WHERE status = ? AND next_retry_at <= ? ORDER BY next_retry_at ASC LIMIT ?`,
		models.DeliveryRetrying, now, limit)
}

func (s *SQLiteStorage) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.listDeliveryIDs(ctx,
		`SELECT id FROM deliveries WHERE status = ? AND updated_at <= ? ORDER BY updated_at ASC LIMIT ?`,
		models.DeliveryPending, cutoff, limit)
}

func (s *SQLiteStorage) listDeliveryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStorage) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, updated_at = ? WHERE status = ? AND updated_at <= ?`,
		models.DeliveryPending, time.Now().UTC(), models.DeliveryInProgress, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE created_at < ? AND status IN (?, ?)`,
		cutoff, models.DeliverySuccess, models.DeliveryFailed,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints WHERE user_id = ?`, userID).Scan(&stats.TotalEndpoints)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints WHERE user_id = ? AND active = 1`, userID).Scan(&stats.ActiveEndpoints)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries d JOIN endpoints e ON d.endpoint_id = e.id WHERE e.user_id = ?`, userID).Scan(&stats.TotalDeliveries)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries d JOIN endpoints e ON d.endpoint_id = e.id WHERE e.user_id = ? AND d.status = 'success'`, userID).Scan(&stats.SuccessCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries d JOIN endpoints e ON d.endpoint_id = e.id WHERE e.user_id = ? AND d.status = 'failed'`, userID).Scan(&stats.FailedCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries d JOIN endpoints e ON d.endpoint_id = e.id WHERE e.user_id = ? AND d.status IN ('pending', 'retrying', 'in_progress')`, userID).Scan(&stats.PendingCount)

	if stats.TotalDeliveries > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalDeliveries) * 100
	}

	return stats, nil
}

func (s *SQLiteStorage) GetEndpointStats(ctx context.Context, endpointID string, since time.Time) (*EndpointStats, error) {
	stats := &EndpointStats{}

	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE endpoint_id = ? AND created_at >= ?`, endpointID, since).Scan(&stats.Total)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE endpoint_id = ? AND created_at >= ? AND status = 'success'`, endpointID, since).Scan(&stats.Successful)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE endpoint_id = ? AND created_at >= ? AND status = 'failed'`, endpointID, since).Scan(&stats.Failed)

	return stats, nil
}
