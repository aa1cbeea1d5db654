package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/tripboard/internal/kafka"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/sirupsen/logrus"
)

// Sender writes confirmation mails. Delivery is a structured log line; an SMTP
// relay can replace it behind the same method.
type Sender struct {
	from string
}

func NewSender(from string) *Sender {
	return &Sender{from: from}
}

// Compose renders the subject and body for a booking event. ok is false for
// event types that need no mail.
func (s *Sender) Compose(event kafka.BookingEvent) (subject, body string, ok bool) {
	switch event.Type {
	case kafka.EventBookingCancelled:
		subject = fmt.Sprintf("Booking %s cancelled", event.BookingID)
		body = fmt.Sprintf("Your trip to %s departing %s has been cancelled.",
			event.Destination, event.Departure.Format("02 Jan 2006 15:04"))
		if event.Reason != "" {
			body += fmt.Sprintf(" Reason: %s.", event.Reason)
		}
		return subject, body, true
	default:
		return "", "", false
	}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, body, ok := s.Compose(event)
	if !ok {
		return nil
	}
	if event.Email == "" {
		log.FromContext(ctx).WithField("booking_id", event.BookingID).Warn("no recipient for booking event")
		return nil
	}

	log.FromContext(ctx).WithFields(logrus.Fields{
		"from":    s.from,
		"to":      event.Email,
		"subject": subject,
		"body":    body,
	}).Info("email sent")
	return nil
}
