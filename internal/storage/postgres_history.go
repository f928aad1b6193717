package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/example/rider-core/internal/models"
)

// PostgresHistory stores each completed ride as a JSONB snapshot in the
// rides table created by migrations/001_create_rides.sql.
type PostgresHistory struct {
	db *sqlx.DB
}

type rideRow struct {
	ID            string         `db:"id"`
	State         string         `db:"state"`
	VehicleClass  string         `db:"vehicle_class"`
	PaymentMethod string         `db:"payment_method"`
	Fare          int64          `db:"fare"`
	DriverID      string         `db:"driver_id"`
	Snapshot      string         `db:"snapshot"`
	Feedback      sql.NullString `db:"feedback"`
	CreatedAt     time.Time      `db:"created_at"`
	CompletedAt   *time.Time     `db:"completed_at"`
}

func NewPostgresHistory(ctx context.Context, dsn string) (*PostgresHistory, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresHistory{db: db}, nil
}

func NewPostgresHistoryFromDB(db *sqlx.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func (p *PostgresHistory) DB() *sqlx.DB { return p.db }

func (p *PostgresHistory) Close() error { return p.db.Close() }

func (p *PostgresHistory) Append(ctx context.Context, r models.Ride) error {
	if r.State != models.RideCompleted {
		return fmt.Errorf("%w: ride %s is %s", ErrNotCompleted, r.ID, r.State)
	}
	snap, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode ride %s: %w", r.ID, err)
	}
	row := rideRow{
		ID:            r.ID,
		State:         string(r.State),
		VehicleClass:  r.VehicleClass,
		PaymentMethod: string(r.PaymentMethod),
		Snapshot:      string(snap),
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
	}
	if r.Estimate != nil {
		row.Fare = r.Estimate.Fare
	}
	if r.Driver != nil {
		row.DriverID = r.Driver.DriverID
	}
	_, err = p.db.NamedExecContext(ctx, `
		INSERT INTO rides (id, state, vehicle_class, payment_method, fare, driver_id, snapshot, created_at, completed_at)
		VALUES (:id, :state, :vehicle_class, :payment_method, :fare, :driver_id, :snapshot, :created_at, :completed_at)
		ON CONFLICT (id) DO NOTHING`, row)
	if err != nil {
		return fmt.Errorf("insert ride %s: %w", r.ID, err)
	}
	return nil
}

func (p *PostgresHistory) List(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	var rows []rideRow
	var err error
	if limit > 0 {
		err = p.db.SelectContext(ctx, &rows, `SELECT * FROM rides ORDER BY completed_at DESC, id LIMIT $1`, limit)
	} else {
		err = p.db.SelectContext(ctx, &rows, `SELECT * FROM rides ORDER BY completed_at DESC, id`)
	}
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	out := make([]models.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *PostgresHistory) Get(ctx context.Context, rideID string) (models.HistoryEntry, error) {
	var row rideRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM rides WHERE id = $1`, rideID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryEntry{}, ErrRideNotFound
	}
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("get ride %s: %w", rideID, err)
	}
	return row.entry()
}

func (p *PostgresHistory) SubmitFeedback(ctx context.Context, rideID string, fb models.Feedback) error {
	if err := ValidateFeedback(fb); err != nil {
		return err
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = time.Now().UTC()
	}
	b, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET feedback = $1 WHERE id = $2`, string(b), rideID)
	if err != nil {
		return fmt.Errorf("update feedback %s: %w", rideID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRideNotFound
	}
	return nil
}

func (r rideRow) entry() (models.HistoryEntry, error) {
	var e models.HistoryEntry
	if err := json.Unmarshal([]byte(r.Snapshot), &e.Ride); err != nil {
		return e, fmt.Errorf("decode ride %s: %w", r.ID, err)
	}
	if r.Feedback.Valid {
		var fb models.Feedback
		if err := json.Unmarshal([]byte(r.Feedback.String), &fb); err != nil {
			return e, fmt.Errorf("decode feedback %s: %w", r.ID, err)
		}
		e.Feedback = &fb
	}
	return e, nil
}
