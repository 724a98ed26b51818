package call

import (
	"context"

	"github.com/dkeye/Tutor/internal/domain"
)

//go:generate mockgen -source=authorizer.go -destination=mock_authorizer_test.go -package=call

// Authorizer is the booking oracle seen from the relay. oracle.Oracle implements it.
type Authorizer interface {
	Authorize(ctx context.Context, user domain.UserID, booking domain.BookingID, role domain.Role) (domain.Decision, error)
}
