package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingRepository is the Booking Store. Every error it returns is a *domain.StoreError.
type BookingRepository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Booking, error)
	Cancel(ctx context.Context, userID, bookingID, reason string) (*domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `b.id, b.user_id, b.status, b.passengers, b.seats, b.total_fare, b.created_at,
	s.id, s.route_id, s.bus_id, s.origin, s.destination, s.departure_time, s.arrival_time`

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+`
		FROM bookings b JOIN schedules s ON s.id = b.schedule_id
		WHERE b.user_id=$1`, userID)
	if err != nil {
		return nil, storeError("could not load your trips", err)
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, storeError("could not load your trips", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("could not load your trips", err)
	}
	return bookings, nil
}

func (r *PGBookingRepository) Cancel(ctx context.Context, userID, bookingID, reason string) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, storeError("could not cancel the booking", err)
	}
	defer tx.Rollback(ctx)

	var owner string
	var status domain.BookingStatus
	err = tx.QueryRow(ctx, `SELECT user_id, status FROM bookings WHERE id=$1 FOR UPDATE`, bookingID).Scan(&owner, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewStoreError(domain.ErrorKindNotFound, "booking not found", err)
	}
	if err != nil {
		return nil, storeError("could not cancel the booking", err)
	}
	if owner != userID {
		// Someone else's booking is reported the same way as a missing one.
		return nil, domain.NewStoreError(domain.ErrorKindNotFound, "booking not found", nil)
	}
	switch status {
	case domain.BookingStatusCancelled:
		return nil, domain.NewStoreError(domain.ErrorKindConflict, "booking is already cancelled", nil)
	case domain.BookingStatusCompleted:
		return nil, domain.NewStoreError(domain.ErrorKindConflict, "a completed trip cannot be cancelled", nil)
	}

	if _, err := tx.Exec(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2`, domain.BookingStatusCancelled, bookingID); err != nil {
		return nil, storeError("could not cancel the booking", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO booking_cancellations (booking_id, reason) VALUES ($1, $2)`, bookingID, reason); err != nil {
		return nil, storeError("could not cancel the booking", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+`
		FROM bookings b JOIN schedules s ON s.id = b.schedule_id
		WHERE b.id=$1`, bookingID)
	updated, err := scanBooking(row)
	if err != nil {
		return nil, storeError("could not cancel the booking", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("could not cancel the booking", err)
	}
	return updated, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var passengers, seats []byte
	if err := row.Scan(&b.ID, &b.UserID, &b.Status, &passengers, &seats, &b.TotalFare, &b.CreatedAt,
		&b.Schedule.ID, &b.Schedule.RouteID, &b.Schedule.BusID, &b.Schedule.Origin, &b.Schedule.Destination,
		&b.Schedule.DepartureTime, &b.Schedule.ArrivalTime); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(passengers, &b.Passengers); err != nil {
		return nil, fmt.Errorf("decode passengers of booking %s: %w", b.ID, err)
	}
	if err := decodeJSONColumn(seats, &b.Seats); err != nil {
		return nil, fmt.Errorf("decode seats of booking %s: %w", b.ID, err)
	}
	return &b, nil
}

func decodeJSONColumn(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// storeError classifies driver errors. Insufficient privilege and invalid
// authorization map to unauthorized, serialization failures to conflict.
func storeError(message string, err error) *domain.StoreError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501", "28000", "28P01":
			return domain.NewStoreError(domain.ErrorKindUnauthorized, "please sign in again", err)
		case "40001", "40P01":
			return domain.NewStoreError(domain.ErrorKindConflict, "the booking was changed concurrently, try again", err)
		case "23514", "P0001":
			return domain.NewStoreError(domain.ErrorKindRejected, message, err)
		}
	}
	return domain.NewStoreError(domain.ErrorKindTransient, message, err)
}

var _ BookingRepository = (*PGBookingRepository)(nil)
