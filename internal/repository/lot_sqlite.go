package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"bidhub-api/internal/model"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteLotRepository implements LotRepository and OrderRepository using
// SQLite. The ownership list is stored as a JSON column; the lot document
// is small and always read and written whole, guarded by the version column.
type SQLiteLotRepository struct {
	db *sql.DB
}

// NewSQLiteLotRepository creates a new SQLite lot repository.
// dbPath is the path to the SQLite database file (e.g., "./data/lots.db").
func NewSQLiteLotRepository(dbPath string) (*SQLiteLotRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createLotTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteLotRepository] Initialized with database: %s", dbPath)
	return &SQLiteLotRepository{db: db}, nil
}

func createLotTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		price_buy_now TEXT NOT NULL DEFAULT '0',
		start_date DATETIME NOT NULL,
		finished_time DATETIME NOT NULL,
		bid_hide_time DATETIME,
		status TEXT NOT NULL,
		has_active_auto_bid INTEGER NOT NULL DEFAULT 0,
		top_ownerships TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lots_status ON lots(status);
	CREATE INDEX IF NOT EXISTS idx_lots_auto ON lots(status, has_active_auto_bid);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		lot_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_lot ON orders(lot_id);
	`
	_, err := db.Exec(query)
	return err
}

// ownershipJSON is the JSON column shape for one ownership record.
type ownershipJSON struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Amount   string `json:"amount"`
	IsAuto   bool   `json:"is_auto"`
	LimitBid string `json:"limit_bid"`
}

func encodeOwnerships(owners []model.Ownership) (string, error) {
	out := make([]ownershipJSON, len(owners))
	for i, o := range owners {
		out[i] = ownershipJSON{
			UserID:   o.UserID,
			UserName: o.UserName,
			Amount:   o.Amount.String(),
			IsAuto:   o.IsAuto,
			LimitBid: o.LimitBid.String(),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode ownerships: %w", err)
	}
	return string(data), nil
}

func decodeOwnerships(raw string) ([]model.Ownership, error) {
	var in []ownershipJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("failed to decode ownerships: %w", err)
	}
	out := make([]model.Ownership, len(in))
	for i, o := range in {
		amount, err := decimal.NewFromString(o.Amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", o.Amount, err)
		}
		limit, err := decimal.NewFromString(o.LimitBid)
		if err != nil {
			return nil, fmt.Errorf("bad limit_bid %q: %w", o.LimitBid, err)
		}
		out[i] = model.Ownership{
			UserID:   o.UserID,
			UserName: o.UserName,
			Amount:   amount,
			IsAuto:   o.IsAuto,
			LimitBid: limit,
		}
	}
	return out, nil
}

// Insert stores a new lot at version 1.
func (r *SQLiteLotRepository) Insert(ctx context.Context, lot *model.Lot) error {
	owners, err := encodeOwnerships(lot.TopOwnerships)
	if err != nil {
		return err
	}

	lot.Version = 1
	query := `
		INSERT INTO lots (id, owner_id, title, description, price, price_buy_now,
			start_date, finished_time, bid_hide_time, status, has_active_auto_bid,
			top_ownerships, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		lot.ID, lot.OwnerID, lot.Title, lot.Description,
		lot.Price.String(), lot.PriceBuyNow.String(),
		lot.StartDate, lot.FinishedTime, nullableTime(lot.BidHideTime),
		string(lot.Status), boolToInt(lot.HasActiveAutoBid),
		owners, lot.Version, lot.CreatedAt, lot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	return nil
}

const lotColumns = `id, owner_id, title, description, price, price_buy_now,
	start_date, finished_time, bid_hide_time, status, has_active_auto_bid,
	top_ownerships, version, created_at, updated_at`

// FindByID retrieves a lot by id.
func (r *SQLiteLotRepository) FindByID(ctx context.Context, id string) (*model.Lot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE id = ?`, id)

	lot, err := scanLot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return lot, nil
}

// List returns a page of lots matching the filter plus the total count.
func (r *SQLiteLotRepository) List(ctx context.Context, filter LotFilter) ([]model.Lot, int64, error) {
	where := " WHERE 1=1"
	var args []interface{}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		where += " AND owner_id = ?"
		args = append(args, filter.OwnerID)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lots"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count lots: %w", err)
	}

	query := `SELECT ` + lotColumns + ` FROM lots` + where + ` ORDER BY finished_time ASC`
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, (page-1)*filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list lots: %w", err)
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, *lot)
	}
	return lots, total, rows.Err()
}

// FindReconcilable returns all active lots with a live proxy bid.
func (r *SQLiteLotRepository) FindReconcilable(ctx context.Context) ([]model.Lot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE status = ? AND has_active_auto_bid = 1`,
		string(model.LotStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query reconcilable lots: %w", err)
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

// UpdateIfVersion conditionally replaces the lot.
func (r *SQLiteLotRepository) UpdateIfVersion(ctx context.Context, lot *model.Lot) error {
	owners, err := encodeOwnerships(lot.TopOwnerships)
	if err != nil {
		return err
	}

	query := `
		UPDATE lots SET
			finished_time = ?, bid_hide_time = ?, status = ?,
			has_active_auto_bid = ?, top_ownerships = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	res, err := r.db.ExecContext(ctx, query,
		lot.FinishedTime, nullableTime(lot.BidHideTime), string(lot.Status),
		boolToInt(lot.HasActiveAutoBid), owners, lot.UpdatedAt,
		lot.ID, lot.Version)
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a stale version.
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lots WHERE id = ?`, lot.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check lot existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	lot.Version++
	return nil
}

// GetStats returns lot counts by status.
func (r *SQLiteLotRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"status": "ok"}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM lots GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats[status] = count
		total += count
	}
	stats["total_lots"] = total

	var orders int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders); err == nil {
		stats["total_orders"] = orders
	}
	return stats, rows.Err()
}

// Close closes the database connection.
func (r *SQLiteLotRepository) Close() error {
	return r.db.Close()
}

// InsertOrder stores a new order.
func (r *SQLiteLotRepository) InsertOrder(ctx context.Context, order *model.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (id, lot_id, buyer_id, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.LotID, order.BuyerID, order.Amount.String(), order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// ExistsForLot reports whether any order references the lot.
func (r *SQLiteLotRepository) ExistsForLot(ctx context.Context, lotID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE lot_id = ?`, lotID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check orders: %w", err)
	}
	return count > 0, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLot(row scanner) (*model.Lot, error) {
	var (
		lot         model.Lot
		price       string
		priceBuyNow string
		bidHide     sql.NullTime
		status      string
		hasAuto     int
		owners      string
	)

	err := row.Scan(&lot.ID, &lot.OwnerID, &lot.Title, &lot.Description,
		&price, &priceBuyNow, &lot.StartDate, &lot.FinishedTime, &bidHide,
		&status, &hasAuto, &owners, &lot.Version, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lot.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("bad price %q: %w", price, err)
	}
	if lot.PriceBuyNow, err = decimal.NewFromString(priceBuyNow); err != nil {
		return nil, fmt.Errorf("bad price_buy_now %q: %w", priceBuyNow, err)
	}
	if bidHide.Valid {
		lot.BidHideTime = bidHide.Time
	}
	lot.Status = model.LotStatus(status)
	lot.HasActiveAutoBid = hasAuto != 0
	if lot.TopOwnerships, err = decodeOwnerships(owners); err != nil {
		return nil, err
	}
	return &lot, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
