package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/campx/campx-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	enabled bool
	err     error
	mu      sync.Mutex
	sent    []string
}

func (f *fakeMailer) Enabled() bool { return f.enabled }

func (f *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return f.err
}

type fakeSMS struct {
	enabled bool
	err     error
	sent    []string
}

func (f *fakeSMS) Enabled() bool { return f.enabled }

func (f *fakeSMS) Send(_ context.Context, to, _ string) error {
	f.sent = append(f.sent, to)
	return f.err
}

func notice() BookingNotice {
	return BookingNotice{
		ListingID:    "l-1",
		ListingTitle: "Calculus textbook",
		SellerName:   "Sam",
		SellerEmail:  "sam@campus.edu",
		SellerPhone:  "+15550001111",
		BuyerName:    "Bea",
		BuyerEmail:   "bea@campus.edu",
	}
}

func TestNotifyBooking_BothChannelsDeliver(t *testing.T) {
	mailer := &fakeMailer{enabled: true}
	sms := &fakeSMS{enabled: true}
	d := NewDispatcher(mailer, sms, time.Second)

	res := d.NotifyBooking(context.Background(), notice())

	assert.True(t, res.EmailSent)
	assert.True(t, res.SMSSent)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{"sam@campus.edu"}, mailer.sent)
	assert.Equal(t, []string{"+15550001111"}, sms.sent)
}

func TestNotifyBooking_FailureIsDegradedNotFatal(t *testing.T) {
	mailer := &fakeMailer{enabled: true, err: errors.New("smtp down")}
	sms := &fakeSMS{enabled: true}
	d := NewDispatcher(mailer, sms, time.Second)

	res := d.NotifyBooking(context.Background(), notice())

	assert.False(t, res.EmailSent)
	assert.True(t, res.SMSSent)
	assert.True(t, res.Degraded)
}

func TestNotifyBooking_UnconfiguredChannelsAreSkipped(t *testing.T) {
	mailer := &fakeMailer{}
	sms := &fakeSMS{}
	d := NewDispatcher(mailer, sms, time.Second)

	res := d.NotifyBooking(context.Background(), notice())

	assert.Equal(t, Result{}, res)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, sms.sent)
}

func TestBookingText_IncludesBuyerContact(t *testing.T) {
	text := BookingText(notice())
	assert.Contains(t, text, "Bea")
	assert.Contains(t, text, "bea@campus.edu")
	assert.Contains(t, text, "Calculus textbook")
	assert.Contains(t, text, "not provided")
}

func TestTwilioSMS_Send(t *testing.T) {
	var gotPath, gotTo, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotTo = r.PostForm.Get("To")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sms := NewTwilioSMS(&config.Config{
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "secret",
		TwilioFrom:       "+15550000000",
		TwilioAPIURL:     srv.URL,
		NotifyTimeout:    time.Second,
	})

	require.NoError(t, sms.Send(context.Background(), "+15551234567", "hello"))
	assert.Equal(t, "/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "+15551234567", gotTo)
	assert.Equal(t, "AC123", gotUser)
}

func TestTwilioSMS_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad number"}`))
	}))
	defer srv.Close()

	sms := NewTwilioSMS(&config.Config{
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "secret",
		TwilioFrom:       "+15550000000",
		TwilioAPIURL:     srv.URL,
		NotifyTimeout:    time.Second,
	})

	err := sms.Send(context.Background(), "nope", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad number")
}

func TestSMTPMailer_DisabledWithoutCredentials(t *testing.T) {
	m := NewSMTPMailer(&config.Config{SMTPHost: "smtp.campus.edu"})
	assert.False(t, m.Enabled())
	assert.ErrorIs(t, m.Send(context.Background(), "a@b.c", "s", "b"), ErrNotConfigured)
}
