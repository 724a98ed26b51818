package domain

type BookingID string

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// DefaultActiveStatuses are the statuses that still admit call joins.
var DefaultActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

// Booking is read-only to the relay.
type Booking struct {
	ID        BookingID     `json:"id"`
	StudentID UserID        `json:"studentId"`
	TutorID   UserID        `json:"tutorId"`
	Status    BookingStatus `json:"status"`
}

// RoleOf reports the relationship of user to the booking.
func (b *Booking) RoleOf(user UserID) (Role, bool) {
	switch user {
	case b.StudentID:
		return RoleStudent, true
	case b.TutorID:
		return RoleTutor, true
	}
	return "", false
}

// Reasons reported by the booking authorization oracle.
const (
	ReasonBookingNotFound = "booking not found"
	ReasonNotParticipant  = "not a participant of this booking"
	ReasonRoleMismatch    = "role does not match booking"
	ReasonBookingInactive = "booking is not active"
)

// Decision is the oracle answer for a single join attempt.
type Decision struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason,omitempty"`
}
