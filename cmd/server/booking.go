package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/store"
)

var bookingCmd = &cobra.Command{
	Use:   "booking",
	Short: "Manage bookings in the configured store",
}

var bookingPut struct {
	id      string
	student string
	tutor   string
	status  string
}

var bookingPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace a booking",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b := &domain.Booking{
			ID:        domain.BookingID(bookingPut.id),
			StudentID: domain.UserID(bookingPut.student),
			TutorID:   domain.UserID(bookingPut.tutor),
			Status:    domain.BookingStatus(bookingPut.status),
		}
		if b.StudentID == b.TutorID {
			return fmt.Errorf("student and tutor must differ")
		}
		switch b.Status {
		case domain.BookingPending, domain.BookingConfirmed, domain.BookingCompleted, domain.BookingCancelled:
		default:
			return fmt.Errorf("unknown status %q", b.Status)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Driver == "" || cfg.Store.Driver == store.DriverMemory {
			return fmt.Errorf("booking put needs a persistent store, got %q", cfg.Store.Driver)
		}
		st, err := store.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.PutBooking(cmd.Context(), b); err != nil {
			return err
		}
		log.Info().Str("booking", string(b.ID)).Str("status", string(b.Status)).Msg("booking stored")
		return nil
	},
}

func init() {
	f := bookingPutCmd.Flags()
	f.StringVar(&bookingPut.id, "id", "", "booking id")
	f.StringVar(&bookingPut.student, "student", "", "student user id")
	f.StringVar(&bookingPut.tutor, "tutor", "", "tutor user id")
	f.StringVar(&bookingPut.status, "status", string(domain.BookingConfirmed), "booking status")
	for _, name := range []string{"id", "student", "tutor"} {
		_ = bookingPutCmd.MarkFlagRequired(name)
	}
	bookingCmd.AddCommand(bookingPutCmd)
}
