package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/booking"
	"gymdesk/internal/domain/class"
)

// mockClasses implements ClassReaderForEnroll.
type mockClasses map[string]class.Class

func (m mockClasses) GetByID(_ context.Context, id string) (class.Class, error) {
	c, ok := m[id]
	if !ok {
		return class.Class{}, apperr.NotFound("classes", id)
	}
	return c, nil
}

// mockBookings keeps bookings in memory and evaluates equality filters.
type mockBookings struct {
	rows      []booking.Booking
	countErr  error
	createErr error
}

func field(b booking.Booking, name string) string {
	switch name {
	case "memberId":
		return b.MemberID
	case "classId":
		return b.ClassID
	case "status":
		return b.Status
	case "id":
		return b.ID
	}
	return ""
}

func (m *mockBookings) Count(_ context.Context, f resource.Filters) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
rows:
	for _, b := range m.rows {
		for k, vals := range f.Equal {
			if len(vals) != 1 || field(b, k) != vals[0] {
				continue rows
			}
		}
		n++
	}
	return n, nil
}

func (m *mockBookings) Create(_ context.Context, b booking.Booking) (booking.Booking, error) {
	if m.createErr != nil {
		return booking.Booking{}, m.createErr
	}
	b.ID = fmt.Sprintf("bk-%d", len(m.rows)+1)
	m.rows = append(m.rows, b)
	return b, nil
}

func (m *mockBookings) GetByID(_ context.Context, id string) (booking.Booking, error) {
	for _, b := range m.rows {
		if b.ID == id {
			return b, nil
		}
	}
	return booking.Booking{}, apperr.NotFound("bookings", id)
}

func (m *mockBookings) Update(_ context.Context, id string, patch resource.Patch) (booking.Booking, error) {
	for i, b := range m.rows {
		if b.ID == id {
			updated, err := resource.ApplyPatch(b, patch)
			if err != nil {
				return booking.Booking{}, err
			}
			m.rows[i] = updated
			return updated, nil
		}
	}
	return booking.Booking{}, apperr.NotFound("bookings", id)
}

func enrollDeps(b *mockBookings) EnrollInClassDeps {
	return EnrollInClassDeps{
		Classes:  mockClasses{"yoga": {ID: "yoga", Title: "Yoga", Capacity: 2}},
		Bookings: b,
	}
}

// TestExecuteEnrollInClass_Capacity verifies the third member is turned away from a class of two.
func TestExecuteEnrollInClass_Capacity(t *testing.T) {
	b := &mockBookings{}
	deps := enrollDeps(b)
	ctx := context.Background()

	for _, m := range []string{"m1", "m2"} {
		got, err := ExecuteEnrollInClass(ctx, EnrollInClassInput{MemberID: m, ClassID: "yoga"}, deps)
		if err != nil {
			t.Fatalf("enroll %s: %v", m, err)
		}
		if got.Status != booking.StatusConfirmed || got.MemberID != m {
			t.Errorf("booking = %+v", got)
		}
	}

	_, err := ExecuteEnrollInClass(ctx, EnrollInClassInput{MemberID: "m3", ClassID: "yoga"}, deps)
	var full *apperr.CapacityReachedError
	if !errors.As(err, &full) {
		t.Fatalf("err = %v, want CapacityReachedError", err)
	}
	if full.Capacity != 2 || full.ClassID != "yoga" {
		t.Errorf("err = %+v", full)
	}
	if !apperr.IsConflict(err) {
		t.Error("capacity error should be a conflict")
	}
	if len(b.rows) != 2 {
		t.Errorf("rows = %d, want 2", len(b.rows))
	}
}

// TestExecuteEnrollInClass_CancelledSeatsFree verifies only confirmed bookings count.
func TestExecuteEnrollInClass_CancelledSeatsFree(t *testing.T) {
	b := &mockBookings{rows: []booking.Booking{
		{ID: "x1", MemberID: "m1", ClassID: "yoga", Status: booking.StatusCancelled},
		{ID: "x2", MemberID: "m2", ClassID: "yoga", Status: booking.StatusWaitlisted},
		{ID: "x3", MemberID: "m3", ClassID: "spin", Status: booking.StatusConfirmed},
		{ID: "x4", MemberID: "m4", ClassID: "yoga", Status: booking.StatusConfirmed},
	}}
	if _, err := ExecuteEnrollInClass(context.Background(), EnrollInClassInput{MemberID: "m1", ClassID: "yoga"}, enrollDeps(b)); err != nil {
		t.Fatalf("enroll: %v", err)
	}
}

// TestExecuteEnrollInClass_Duplicate verifies a second booking for the same member is refused.
func TestExecuteEnrollInClass_Duplicate(t *testing.T) {
	b := &mockBookings{}
	deps := enrollDeps(b)
	in := EnrollInClassInput{MemberID: "m1", ClassID: "yoga"}
	if _, err := ExecuteEnrollInClass(context.Background(), in, deps); err != nil {
		t.Fatalf("first enroll: %v", err)
	}
	_, err := ExecuteEnrollInClass(context.Background(), in, deps)
	var c *apperr.ConflictError
	if !errors.As(err, &c) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
}

// TestExecuteEnrollInClass_Errors verifies input and lookup failures.
func TestExecuteEnrollInClass_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input EnrollInClassInput
		b     *mockBookings
		check func(error) bool
	}{
		{"noMember", EnrollInClassInput{ClassID: "yoga"}, &mockBookings{}, apperr.IsValidation},
		{"noClass", EnrollInClassInput{MemberID: "m1"}, &mockBookings{}, apperr.IsValidation},
		{"unknownClass", EnrollInClassInput{MemberID: "m1", ClassID: "box"}, &mockBookings{}, apperr.IsNotFound},
		{"countFails", EnrollInClassInput{MemberID: "m1", ClassID: "yoga"}, &mockBookings{countErr: apperr.Server("down")}, func(err error) bool {
			var s *apperr.ServerError
			return errors.As(err, &s)
		}},
		{"createFails", EnrollInClassInput{MemberID: "m1", ClassID: "yoga"}, &mockBookings{createErr: apperr.Unauthorized("rls")}, apperr.IsUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExecuteEnrollInClass(context.Background(), tt.input, enrollDeps(tt.b))
			if !tt.check(err) {
				t.Errorf("unexpected err %v", err)
			}
		})
	}
}

// TestExecuteCancelBooking verifies status change, ownership and repeat cancels.
func TestExecuteCancelBooking(t *testing.T) {
	b := &mockBookings{rows: []booking.Booking{{ID: "bk-1", MemberID: "m1", ClassID: "yoga", Status: booking.StatusConfirmed}}}
	deps := CancelBookingDeps{Bookings: b}
	ctx := context.Background()

	if _, err := ExecuteCancelBooking(ctx, CancelBookingInput{BookingID: "bk-1", MemberID: "m2"}, deps); !apperr.IsNotFound(err) {
		t.Errorf("other member err = %v", err)
	}
	got, err := ExecuteCancelBooking(ctx, CancelBookingInput{BookingID: "bk-1", MemberID: "m1"}, deps)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != booking.StatusCancelled || b.rows[0].Status != booking.StatusCancelled {
		t.Errorf("status = %q", got.Status)
	}
	if _, err := ExecuteCancelBooking(ctx, CancelBookingInput{BookingID: "bk-1"}, deps); !apperr.IsConflict(err) {
		t.Errorf("repeat cancel err = %v", err)
	}
	if _, err := ExecuteCancelBooking(ctx, CancelBookingInput{}, deps); !apperr.IsValidation(err) {
		t.Errorf("empty id err = %v", err)
	}
}
