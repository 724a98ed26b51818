// Package oracle answers whether a user may join a booking's call in a role.
package oracle

import (
	"context"
	"errors"

	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/store"
	"github.com/rs/zerolog/log"
)

type Oracle struct {
	bookings store.BookingStore
	active   map[domain.BookingStatus]bool
}

// New builds an oracle over bookings. An empty active list falls back to
// domain.DefaultActiveStatuses.
func New(bookings store.BookingStore, active []domain.BookingStatus) *Oracle {
	if len(active) == 0 {
		active = domain.DefaultActiveStatuses
	}
	set := make(map[domain.BookingStatus]bool, len(active))
	for _, s := range active {
		set[s] = true
	}
	return &Oracle{bookings: bookings, active: set}
}

// Authorize checks, in order: the booking exists, user is one of its two
// parties, claimed matches that relationship and the status is active.
// The error is non-nil only when the lookup itself failed.
func (o *Oracle) Authorize(ctx context.Context, user domain.UserID, id domain.BookingID, claimed domain.Role) (domain.Decision, error) {
	b, err := o.bookings.GetBooking(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return deny(domain.ReasonBookingNotFound), nil
	}
	if err != nil {
		log.Error().Str("module", "app.oracle").Str("booking", string(id)).Err(err).Msg("booking lookup failed")
		return domain.Decision{}, domain.PersistenceError("booking lookup failed", err)
	}
	actual, ok := b.RoleOf(user)
	if !ok {
		return deny(domain.ReasonNotParticipant), nil
	}
	if claimed != actual {
		return deny(domain.ReasonRoleMismatch), nil
	}
	if !o.active[b.Status] {
		return deny(domain.ReasonBookingInactive), nil
	}
	return domain.Decision{Authorized: true}, nil
}

func deny(reason string) domain.Decision {
	return domain.Decision{Authorized: false, Reason: reason}
}
