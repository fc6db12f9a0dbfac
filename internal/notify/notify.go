// Package notify delivers out-of-band seller notifications by email and SMS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNotConfigured is returned by a channel whose credentials are missing.
var ErrNotConfigured = errors.New("notification channel not configured")

type Mailer interface {
	Enabled() bool
	Send(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	Enabled() bool
	Send(ctx context.Context, to, body string) error
}

// BookingNotice carries what the seller needs to contact the buyer.
type BookingNotice struct {
	ListingID    string
	ListingTitle string
	SellerName   string
	SellerEmail  string
	SellerPhone  string
	BuyerName    string
	BuyerEmail   string
	BuyerPhone   string
}

// Result reports which channels delivered. Degraded is true when a
// configured channel was attempted and failed.
type Result struct {
	EmailSent bool
	SMSSent   bool
	Degraded  bool
}

type Dispatcher struct {
	mailer  Mailer
	sms     SMSSender
	timeout time.Duration
}

func NewDispatcher(mailer Mailer, sms SMSSender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{mailer: mailer, sms: sms, timeout: timeout}
}

// NotifyBooking sends the email and SMS concurrently and never returns an
// error: delivery failures are logged and folded into the result.
func (d *Dispatcher) NotifyBooking(ctx context.Context, n BookingNotice) Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var res Result
	var emailErr, smsErr error
	g, gctx := errgroup.WithContext(ctx)

	if d.mailer != nil && d.mailer.Enabled() && n.SellerEmail != "" {
		g.Go(func() error {
			emailErr = d.mailer.Send(gctx, n.SellerEmail, BookingSubject(n), BookingText(n))
			return nil
		})
	}
	if d.sms != nil && d.sms.Enabled() && n.SellerPhone != "" {
		g.Go(func() error {
			smsErr = d.sms.Send(gctx, n.SellerPhone, BookingSMS(n))
			return nil
		})
	}
	_ = g.Wait()

	if d.mailer != nil && d.mailer.Enabled() && n.SellerEmail != "" {
		if emailErr != nil {
			res.Degraded = true
			slog.Warn("booking email failed", "action", "notify_email", "listing_id", n.ListingID, "error", emailErr)
		} else {
			res.EmailSent = true
		}
	}
	if d.sms != nil && d.sms.Enabled() && n.SellerPhone != "" {
		if smsErr != nil {
			res.Degraded = true
			slog.Warn("booking sms failed", "action", "notify_sms", "listing_id", n.ListingID, "error", smsErr)
		} else {
			res.SMSSent = true
		}
	}
	return res
}

func BookingSubject(n BookingNotice) string {
	return fmt.Sprintf("Your item %q has been booked", n.ListingTitle)
}

// BookingText is the notification body shared by the in-app message and the
// email.
func BookingText(n BookingNotice) string {
	phone := n.BuyerPhone
	if phone == "" {
		phone = "not provided"
	}
	return fmt.Sprintf(
		"Hi %s, %s has booked your item %q.\n\nContact the buyer:\nName: %s\nEmail: %s\nPhone: %s",
		n.SellerName, n.BuyerName, n.ListingTitle, n.BuyerName, n.BuyerEmail, phone,
	)
}

func BookingSMS(n BookingNotice) string {
	return fmt.Sprintf("CampX: %s booked %q. Contact %s.", n.BuyerName, n.ListingTitle, n.BuyerEmail)
}
