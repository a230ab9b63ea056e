package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"

	"github.com/lib/pq"
)

type cellRepository struct {
	db *sql.DB
}

func NewCellRepository(db *sql.DB) repository.CellRepository {
	return &cellRepository{db: db}
}

func (r *cellRepository) Get(ctx context.Context, key domain.CellKey) (*domain.AvailabilityCell, error) {
	query := `SELECT status, booking_id, version, updated_on FROM availability_cells WHERE unit_id = $1 AND night = $2`
	cell := domain.NewFreeCell(key)
	var bookingID sql.NullString
	err := r.db.QueryRowContext(ctx, query, key.UnitID, key.Date).Scan(&cell.Status, &bookingID, &cell.Version, &cell.UpdatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return cell, nil
	}
	if err != nil {
		return nil, err
	}
	cell.BookingID = bookingID.String
	return cell, nil
}

// CompareAndSwap inserts the first version of a cell or updates it guarded by its version.
// Zero affected rows means another writer got there first.
func (r *cellRepository) CompareAndSwap(ctx context.Context, cell *domain.AvailabilityCell, expectedVersion int64) error {
	if err := cell.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	var (
		query string
		args  []any
	)
	if expectedVersion == 0 {
		query = `INSERT INTO availability_cells (unit_id, night, status, booking_id, version, updated_on)
		         VALUES ($1, $2, $3, $4, 1, $5) ON CONFLICT (unit_id, night) DO NOTHING`
		args = []any{cell.UnitID, cell.Date, cell.Status, nullString(cell.BookingID), now}
	} else {
		query = `UPDATE availability_cells SET status = $1, booking_id = $2, version = version + 1, updated_on = $3
		         WHERE unit_id = $4 AND night = $5 AND version = $6`
		args = []any{cell.Status, nullString(cell.BookingID), now, cell.UnitID, cell.Date, expectedVersion}
	}

	logger.DatabaseCall("cells.compare_and_swap", query, "cell", cell.Key().ID(), "expectedVersion", expectedVersion)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("cells.compare_and_swap", 0, err)
		return fmt.Errorf("failed to write cell %s: %w", cell.Key(), mapError(err))
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("cells.compare_and_swap", n, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	cell.Version = expectedVersion + 1
	cell.UpdatedOn = now
	return nil
}

func (r *cellRepository) ListRange(ctx context.Context, unitIDs []string, from, to time.Time) ([]domain.AvailabilityCell, error) {
	query := `SELECT unit_id, night, status, booking_id, version, updated_on FROM availability_cells
	          WHERE unit_id = ANY($1) AND night >= $2 AND night < $3 ORDER BY unit_id, night`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(unitIDs), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []domain.AvailabilityCell
	for rows.Next() {
		var c domain.AvailabilityCell
		var bookingID sql.NullString
		if err := rows.Scan(&c.UnitID, &c.Date, &c.Status, &bookingID, &c.Version, &c.UpdatedOn); err != nil {
			return nil, err
		}
		c.Date = domain.TruncateDate(c.Date)
		c.BookingID = bookingID.String
		cells = append(cells, c)
	}
	return cells, rows.Err()
}
