// internal/mailer/mailer_test.go
package mailer

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type smtpTranscript struct {
	commands []string
	data     string
}

// serveSMTP answers one plain SMTP session on conn and reports what it received.
func serveSMTP(conn net.Conn, done chan<- smtpTranscript) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	var got smtpTranscript

	_ = tp.PrintfLine("220 mail.test ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			done <- got
			return
		}
		got.commands = append(got.commands, line)
		switch strings.ToUpper(strings.Fields(line)[0]) {
		case "EHLO", "HELO", "MAIL", "RCPT":
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			b, err := tp.ReadDotBytes()
			if err != nil {
				done <- got
				return
			}
			got.data = string(b)
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			done <- got
			return
		default:
			_ = tp.PrintfLine("502 unknown command")
		}
	}
}

func withDialer(t *testing.T, fn func(ctx context.Context, network, addr string) (net.Conn, error)) {
	t.Helper()
	orig := dialContext
	dialContext = fn
	t.Cleanup(func() { dialContext = orig })
}

func TestSMTPMailer_SendOTP(t *testing.T) {
	done := make(chan smtpTranscript, 1)
	var gotAddr string
	withDialer(t, func(_ context.Context, _, addr string) (net.Conn, error) {
		gotAddr = addr
		client, server := net.Pipe()
		go serveSMTP(server, done)
		return client, nil
	})

	m := NewSMTPMailer("smtp.example.com", 587, "noreply@example.com", "pw")
	require.NoError(t, m.SendOTP(context.Background(), "user@example.com", "123456", PurposeReset))

	got := <-done
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Contains(t, got.commands, "MAIL FROM:<noreply@example.com>")
	assert.Contains(t, got.commands, "RCPT TO:<user@example.com>")
	assert.Contains(t, got.data, "Subject: Your password reset code")
	assert.Contains(t, got.data, "123456")
}

func TestSMTPMailer_DialFailure(t *testing.T) {
	withDialer(t, func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	})

	err := NewSMTPMailer("h", 25, "f@example.com", "").SendOTP(context.Background(), "u@example.com", "000111", PurposeSignup)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSMTPMailer_UnresponsiveServerTimesOut(t *testing.T) {
	withDialer(t, func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { server.Close() })
		// The server never sends its greeting.
		return client, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewSMTPMailer("h", 25, "f@example.com", "").SendOTP(ctx, "u@example.com", "000111", PurposeSignup)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPMailer_DefaultTimeoutWithoutDeadline(t *testing.T) {
	withDialer(t, func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { server.Close() })
		return client, nil
	})

	m := NewSMTPMailer("h", 25, "f@example.com", "")
	m.timeout = 50 * time.Millisecond

	start := time.Now()
	err := m.SendOTP(context.Background(), "u@example.com", "000111", PurposeSignup)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPMailer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSMTPMailer("h", 25, "f@example.com", "").SendOTP(ctx, "u@example.com", "000111", PurposeSignup)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, LogMailer{}.SendOTP(context.Background(), "u@example.com", "123456", PurposeSignup))
}
