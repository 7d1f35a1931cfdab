package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"possync/internal/database"
	"possync/internal/domain"
	"possync/internal/events"
	"possync/internal/metrics"
	"possync/internal/models"
)

// EnqueueResult is returned to the caller immediately after the local write;
// nothing here depends on the network.
type EnqueueResult struct {
	BookingID string `json:"booking_id"`
	OutboxID  string `json:"outbox_id"`
	QueueSize int    `json:"queue_size"`
}

// BookingService accepts bookings offline: each create lands in the local
// store and the outbox in one transaction, so a crash never produces a
// booking without its pending mutation or the other way around.
type BookingService struct {
	db     *database.DB
	bus    domain.EventPublisher
	logger *zerolog.Logger
}

func NewBookingService(db *database.DB, bus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{db: db, bus: bus, logger: logger}
}

// EnqueueBooking validates the request, persists the booking as dirty and
// queues its creation mutation. Returns without touching the network.
func (s *BookingService) EnqueueBooking(ctx context.Context, customerName string, startsAt, endsAt time.Time) (*EnqueueResult, error) {
	customerName = strings.TrimSpace(customerName)
	if customerName == "" {
		return nil, fmt.Errorf("customer name is required")
	}
	if startsAt.IsZero() || endsAt.IsZero() {
		return nil, fmt.Errorf("start and end times are required")
	}
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("end time must be after start time")
	}

	booking := &models.Booking{
		ID:           uuid.NewString(),
		CustomerName: customerName,
		StartsAt:     startsAt.UTC(),
		EndsAt:       endsAt.UTC(),
		Status:       models.StatusPending,
		UpdatedAt:    time.Now().UTC(),
		Dirty:        true,
	}

	payload, err := models.EncodePayload(models.BookingCreatePayload{
		LocalID:      booking.ID,
		CustomerName: booking.CustomerName,
		StartsAt:     booking.StartsAt,
		EndsAt:       booking.EndsAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode booking payload: %w", err)
	}

	outboxID, queueSize, err := s.db.CreateBookingWithMutation(ctx, booking, models.MutationBookingCreate, payload)
	if err != nil {
		return nil, fmt.Errorf("persist booking: %w", err)
	}

	metrics.IncEnqueued()
	metrics.SetOutboxSize(queueSize)

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("outbox_id", outboxID).
		Int("queue_size", queueSize).
		Msg("Booking enqueued")

	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{
			BookingID:    booking.ID,
			OutboxID:     outboxID,
			CustomerName: booking.CustomerName,
			StartsAt:     booking.StartsAt,
			EndsAt:       booking.EndsAt,
			QueueSize:    queueSize,
		})
	}

	return &EnqueueResult{BookingID: booking.ID, OutboxID: outboxID, QueueSize: queueSize}, nil
}

// EnqueueRoomUpdate queues a room status change. Older queued updates for the
// same room are superseded at push time.
func (s *BookingService) EnqueueRoomUpdate(ctx context.Context, roomID, status string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	status = strings.TrimSpace(status)
	if roomID == "" || status == "" {
		return "", fmt.Errorf("room id and status are required")
	}

	payload, err := models.EncodePayload(models.RoomUpdatePayload{RoomID: roomID, Status: status})
	if err != nil {
		return "", fmt.Errorf("encode room update payload: %w", err)
	}

	outboxID, err := s.db.Enqueue(ctx, models.MutationRoomUpdate, payload)
	if err != nil {
		return "", fmt.Errorf("queue room update: %w", err)
	}

	s.logger.Info().Str("room_id", roomID).Str("status", status).Str("outbox_id", outboxID).Msg("Room update enqueued")
	return outboxID, nil
}

// GetBooking returns a booking by local id.
func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.db.GetBooking(ctx, id)
}

// QueueSize reports the number of pending mutations.
func (s *BookingService) QueueSize(ctx context.Context) (int, error) {
	return s.db.QueueSize(ctx)
}
