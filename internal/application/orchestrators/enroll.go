package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/booking"
	"gymdesk/internal/domain/class"
)

// ClassReaderForEnroll defines the class lookup needed by EnrollInClass.
type ClassReaderForEnroll interface {
	GetByID(ctx context.Context, id string) (class.Class, error)
}

// BookingStoreForEnroll defines the booking operations needed by EnrollInClass.
type BookingStoreForEnroll interface {
	Count(ctx context.Context, f resource.Filters) (int, error)
	Create(ctx context.Context, b booking.Booking) (booking.Booking, error)
}

// EnrollInClassInput carries input for the enroll orchestrator.
type EnrollInClassInput struct {
	MemberID string
	ClassID  string
}

// EnrollInClassDeps holds dependencies for EnrollInClass.
type EnrollInClassDeps struct {
	Classes  ClassReaderForEnroll
	Bookings BookingStoreForEnroll
}

// ExecuteEnrollInClass books a member into a class if a seat is free.
// PRE: MemberID and ClassID are non-empty
// POST: a confirmed booking exists, or CapacityReachedError / ConflictError is returned
// INVARIANT: the count and the insert are separate calls; two members racing for
// the last seat can both succeed
func ExecuteEnrollInClass(ctx context.Context, input EnrollInClassInput, deps EnrollInClassDeps) (booking.Booking, error) {
	memberID := strings.TrimSpace(input.MemberID)
	classID := strings.TrimSpace(input.ClassID)
	if memberID == "" {
		return booking.Booking{}, apperr.Validation("memberId", "member is required")
	}
	if classID == "" {
		return booking.Booking{}, apperr.Validation("classId", "class is required")
	}

	cls, err := deps.Classes.GetByID(ctx, classID)
	if err != nil {
		return booking.Booking{}, err
	}

	confirmed := resource.Filters{}.
		Where("classId", classID).
		Where(resource.FieldStatus, booking.StatusConfirmed)

	mine, err := deps.Bookings.Count(ctx, confirmed.Where("memberId", memberID))
	if err != nil {
		return booking.Booking{}, err
	}
	if mine > 0 {
		return booking.Booking{}, apperr.Conflict("you are already booked into this class")
	}

	taken, err := deps.Bookings.Count(ctx, confirmed)
	if err != nil {
		return booking.Booking{}, err
	}
	if !cls.HasRoom(taken) {
		slog.Info("booking_event", "event", "class_full", "class_id", classID, "capacity", cls.Capacity)
		return booking.Booking{}, apperr.CapacityReached(classID, cls.Capacity)
	}

	b, err := deps.Bookings.Create(ctx, booking.Booking{
		MemberID: memberID,
		ClassID:  classID,
		Status:   booking.StatusConfirmed,
	})
	if err != nil {
		return booking.Booking{}, err
	}

	slog.Info("booking_event", "event", "enrolled", "booking_id", b.ID, "class_id", classID, "member_id", memberID)
	return b, nil
}

// BookingStoreForCancel defines the booking operations needed by CancelBooking.
type BookingStoreForCancel interface {
	GetByID(ctx context.Context, id string) (booking.Booking, error)
	Update(ctx context.Context, id string, patch resource.Patch) (booking.Booking, error)
}

// CancelBookingInput carries input for the cancel orchestrator.
// MemberID, when set, restricts the cancel to that member's own bookings.
type CancelBookingInput struct {
	BookingID string
	MemberID  string
}

// CancelBookingDeps holds dependencies for CancelBooking.
type CancelBookingDeps struct {
	Bookings BookingStoreForCancel
}

// ExecuteCancelBooking marks a booking cancelled.
// PRE: BookingID is non-empty
// POST: booking status is cancelled
func ExecuteCancelBooking(ctx context.Context, input CancelBookingInput, deps CancelBookingDeps) (booking.Booking, error) {
	if strings.TrimSpace(input.BookingID) == "" {
		return booking.Booking{}, apperr.Validation("bookingId", "booking is required")
	}

	b, err := deps.Bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	if input.MemberID != "" && b.MemberID != input.MemberID {
		return booking.Booking{}, apperr.NotFound(resource.Bookings.Name, input.BookingID)
	}
	if b.Status == booking.StatusCancelled {
		return booking.Booking{}, apperr.Conflict("booking is already cancelled")
	}

	updated, err := deps.Bookings.Update(ctx, b.ID, resource.Patch{resource.FieldStatus: booking.StatusCancelled})
	if err != nil {
		return booking.Booking{}, err
	}

	slog.Info("booking_event", "event", "cancelled", "booking_id", b.ID, "class_id", b.ClassID)
	return updated, nil
}
