package tools

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	apperrors "github.com/randalmurphal/portfolio-agent/pkg/errors"
)

var fastRetry = apperrors.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     time.Millisecond,
	BackoffFactor:  1,
}

func newCalendly(t *testing.T, mux http.Handler) *Calendly {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewCalendly(CalendlyConfig{APIKey: "cal-key", BaseURL: srv.URL + "/", Retry: &fastRetry})
	require.NoError(t, err)
	return c
}

func TestCalendly_SchedulingLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cal-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"resource": {"uri": "https://api.calendly.com/users/ABC"}}`))
	})
	mux.HandleFunc("/event_types", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://api.calendly.com/users/ABC", r.URL.Query().Get("user"))
		_, _ = w.Write([]byte(`{"collection": [
			{"name": "draft", "scheduling_url": ""},
			{"name": "30 min", "active": true, "scheduling_url": "https://calendly.com/me/30min"}
		]}`))
	})

	link, err := newCalendly(t, mux).SchedulingLink(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://calendly.com/me/30min", link)
}

func TestCalendly_NoEventTypes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"resource": {"uri": "u"}}`))
	})
	mux.HandleFunc("/event_types", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"collection": []}`))
	})

	_, err := newCalendly(t, mux).SchedulingLink(context.Background())
	assert.ErrorIs(t, err, ErrNoEventTypes)
}

func TestCalendly_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"title": "Unauthenticated"}`, http.StatusUnauthorized)
	})

	_, err := newCalendly(t, mux).SchedulingLink(context.Background())
	var httpErr *apperrors.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCalendly_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"resource": {"uri": "u"}}`))
	})
	mux.HandleFunc("/event_types", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"collection": [{"scheduling_url": "https://calendly.com/x"}]}`))
	})

	link, err := newCalendly(t, mux).SchedulingLink(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://calendly.com/x", link)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCalendly_MalformedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := newCalendly(t, mux).SchedulingLink(context.Background())
	var parseErr *apperrors.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.True(t, apperrors.IsMalformed(err))
}

func TestNewCalendly_RequiresKey(t *testing.T) {
	_, err := NewCalendly(CalendlyConfig{})
	var cfgErr *apperrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "CALENDLY_API_KEY", cfgErr.Key)

	c, err := NewCalendly(CalendlyConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultCalendlyBaseURL, c.baseURL)
}

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	f.sent = append(f.sent, msgs...)
	return f.err
}

func newTestMailer(t *testing.T, fake *fakeSender) *SMTPMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", User: "u", Password: "p", From: "me@example.com"})
	require.NoError(t, err)
	m.newSender = func() (sender, error) { return fake, nil }
	return m
}

func TestSMTPMailer_Send(t *testing.T) {
	fake := &fakeSender{}
	m := newTestMailer(t, fake)

	err := m.Send(context.Background(), Email{To: "recruiter@example.com", Subject: "Hello", Body: "Thanks for reaching out."})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)

	var buf bytes.Buffer
	_, err = fake.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Hello")
	assert.Contains(t, raw, "recruiter@example.com")
	assert.Contains(t, raw, "me@example.com")
	assert.Contains(t, raw, "Thanks for reaching out.")
}

func TestSMTPMailer_DefaultSubject(t *testing.T) {
	fake := &fakeSender{}
	m := newTestMailer(t, fake)

	require.NoError(t, m.Send(context.Background(), Email{To: "a@example.com", Body: "hi"}))
	var buf bytes.Buffer
	_, err := fake.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Subject: "+DefaultSubject)
}

func TestSMTPMailer_Errors(t *testing.T) {
	fake := &fakeSender{err: errors.New("454 TLS not available")}
	m := newTestMailer(t, fake)

	assert.ErrorIs(t, m.Send(context.Background(), Email{Body: "x"}), ErrNoRecipient)
	assert.Error(t, m.Send(context.Background(), Email{To: "not an address", Body: "x"}))

	err := m.Send(context.Background(), Email{To: "a@example.com", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS not available")
}

func TestNewSMTPMailer_Validation(t *testing.T) {
	var cfgErr *apperrors.ConfigError

	_, err := NewSMTPMailer(SMTPConfig{From: "me@example.com"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "SMTP_HOST", cfgErr.Key)

	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "EMAIL_FROM", cfgErr.Key)
}
