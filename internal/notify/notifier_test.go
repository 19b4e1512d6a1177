package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/messaging"
)

type fakeWhatsApp struct {
	mu         sync.Mutex
	configured bool
	failures   []error
	calls      int
	sent       []string
	phones     []string
}

func (f *fakeWhatsApp) Configured() bool { return f.configured }

func (f *fakeWhatsApp) Send(ctx context.Context, phone, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return "", err
	}
	f.sent = append(f.sent, body)
	f.phones = append(f.phones, phone)
	return fmt.Sprintf("SM%d", f.calls), nil
}

type fakeEmail struct {
	mu   sync.Mutex
	err  error
	sent []EmailMessage
}

func (f *fakeEmail) Send(ctx context.Context, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testConfig() Config {
	return Config{ClinicName: "Sonrisa Perfecta", Location: mexico, MaxAttempts: 3, RetryBaseWait: time.Millisecond}
}

func TestNotifierBookingConfirmed(t *testing.T) {
	wa := &fakeWhatsApp{configured: true}
	n := NewNotifier(wa, nil, testConfig(), nil)

	require.NoError(t, n.BookingConfirmed(context.Background(), sampleAppointment()))
	require.Len(t, wa.sent, 1)
	assert.Equal(t, "5512345678", wa.phones[0])
	assert.Contains(t, wa.sent[0], "Cita confirmada")
}

func TestNotifierSendsEmailWhenPatientHasOne(t *testing.T) {
	wa := &fakeWhatsApp{configured: true}
	mail := &fakeEmail{}
	n := NewNotifier(wa, mail, testConfig(), nil)

	appt := sampleAppointment()
	appt.Patient.Email = "maria@example.com"
	require.NoError(t, n.Cancelled(context.Background(), appt))

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "maria@example.com", mail.sent[0].To)
	assert.Equal(t, "María López", mail.sent[0].ToName)
	assert.Equal(t, "Cita cancelada — Sonrisa Perfecta", mail.sent[0].Subject)
	assert.Len(t, wa.sent, 1)
}

func TestNotifierSkips(t *testing.T) {
	wa := &fakeWhatsApp{configured: false}
	mail := &fakeEmail{}
	n := NewNotifier(wa, mail, testConfig(), nil)

	assert.NoError(t, n.BookingConfirmed(context.Background(), sampleAppointment()))
	assert.Zero(t, wa.calls)
	assert.Empty(t, mail.sent)

	configured := &fakeWhatsApp{configured: true}
	n = NewNotifier(configured, nil, testConfig(), nil)
	noPhone := sampleAppointment()
	noPhone.Patient.Phone = ""
	assert.NoError(t, n.BookingConfirmed(context.Background(), noPhone))
	noPatient := sampleAppointment()
	noPatient.Patient = nil
	assert.NoError(t, n.BookingConfirmed(context.Background(), noPatient))
	assert.Zero(t, configured.calls)
}

func TestNotifierStatusChangedOnlyForNotifiableStatuses(t *testing.T) {
	wa := &fakeWhatsApp{configured: true}
	n := NewNotifier(wa, nil, testConfig(), nil)

	appt := sampleAppointment()
	appt.Status = appointments.StatusNoShow
	require.NoError(t, n.StatusChanged(context.Background(), appt))
	assert.Zero(t, wa.calls)

	appt.Status = appointments.StatusPaid
	require.NoError(t, n.StatusChanged(context.Background(), appt))
	require.Len(t, wa.sent, 1)
	assert.Contains(t, wa.sent[0], "💰 pagada (anticipo recibido)")
}

func TestNotifierRetriesTransientFailures(t *testing.T) {
	wa := &fakeWhatsApp{configured: true, failures: []error{errors.New("status 503"), errors.New("status 500")}}
	n := NewNotifier(wa, nil, testConfig(), nil)

	require.NoError(t, n.Reminder(context.Background(), sampleAppointment()))
	assert.Equal(t, 3, wa.calls)
	assert.Len(t, wa.sent, 1)
}

func TestNotifierGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("status 503")
	wa := &fakeWhatsApp{configured: true, failures: []error{transient, transient, transient, transient}}
	n := NewNotifier(wa, nil, testConfig(), nil)

	err := n.Reminder(context.Background(), sampleAppointment())
	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, wa.calls)
}

func TestNotifierStopsOnPermanentFailure(t *testing.T) {
	permanent := fmt.Errorf("%w: status 400 code 21211", messaging.ErrPermanent)
	wa := &fakeWhatsApp{configured: true, failures: []error{permanent, permanent}}
	n := NewNotifier(wa, nil, testConfig(), nil)

	err := n.BookingConfirmed(context.Background(), sampleAppointment())
	require.Error(t, err)
	assert.ErrorIs(t, err, messaging.ErrPermanent)
	assert.Equal(t, 1, wa.calls)
}

func TestNotifierRetryRespectsContext(t *testing.T) {
	wa := &fakeWhatsApp{configured: true, failures: []error{errors.New("status 503"), errors.New("status 503")}}
	cfg := testConfig()
	cfg.RetryBaseWait = time.Hour
	n := NewNotifier(wa, nil, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := n.BookingConfirmed(ctx, sampleAppointment())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, wa.calls)
}

func TestNotifierOneChannelIsEnough(t *testing.T) {
	permanent := fmt.Errorf("%w: bad number", messaging.ErrPermanent)
	wa := &fakeWhatsApp{configured: true, failures: []error{permanent}}
	mail := &fakeEmail{}
	n := NewNotifier(wa, mail, testConfig(), nil)

	appt := sampleAppointment()
	appt.Patient.Email = "maria@example.com"
	assert.NoError(t, n.Reminder(context.Background(), appt))
	assert.Len(t, mail.sent, 1)

	mail.err = errors.New("sendgrid down")
	wa.failures = []error{permanent}
	assert.Error(t, n.Reminder(context.Background(), appt))
}

func TestNotifierHasChannel(t *testing.T) {
	assert.False(t, NewNotifier(nil, nil, Config{}, nil).HasChannel())
	assert.False(t, NewNotifier(&fakeWhatsApp{}, nil, Config{}, nil).HasChannel())
	assert.True(t, NewNotifier(&fakeWhatsApp{configured: true}, nil, Config{}, nil).HasChannel())
	assert.True(t, NewNotifier(nil, &fakeEmail{}, Config{}, nil).HasChannel())
}
