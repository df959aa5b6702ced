package resource

import (
	"gymdesk/internal/domain/booking"
	"gymdesk/internal/domain/class"
	"gymdesk/internal/domain/member"
	"gymdesk/internal/domain/payment"
	"gymdesk/internal/domain/program"
	"gymdesk/internal/domain/trainer"
)

// Clients bundles a typed client per collection over one backend.
type Clients struct {
	Members  *Client[member.Member]
	Trainers *Client[trainer.Trainer]
	Classes  *Client[class.Class]
	Bookings *Client[booking.Booking]
	Programs *Client[program.Program]
	Payments *Client[payment.Payment]
}

// NewClients creates the six clients. recorder may be nil.
func NewClients(backend Backend, recorder Recorder) *Clients {
	return &Clients{
		Members:  NewClient[member.Member](backend, Members, recorder),
		Trainers: NewClient[trainer.Trainer](backend, Trainers, recorder),
		Classes:  NewClient[class.Class](backend, Classes, recorder),
		Bookings: NewClient[booking.Booking](backend, Bookings, recorder),
		Programs: NewClient[program.Program](backend, Programs, recorder),
		Payments: NewClient[payment.Payment](backend, Payments, recorder),
	}
}
