// internal/mailer/mailer.go
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/Annany2002/dataspace-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Purpose selects the message template.
type Purpose string

const (
	PurposeSignup Purpose = "signup"
	PurposeReset  Purpose = "reset"
)

// DefaultSendTimeout bounds one delivery when the caller's context has no deadline.
const DefaultSendTimeout = 30 * time.Second

// dialContext is a seam for tests.
var dialContext = (&net.Dialer{}).DialContext

// SMTPMailer delivers passcodes over SMTP with PLAIN auth, upgrading to
// STARTTLS when the server offers it. The whole exchange runs under the
// context deadline.
type SMTPMailer struct {
	host     string
	port     int
	from     string
	password string
	timeout  time.Duration
}

// NewSMTPMailer creates a mailer authenticating as from.
func NewSMTPMailer(host string, port int, from, password string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, from: from, password: password, timeout: DefaultSendTimeout}
}

// SendOTP emails code to the recipient.
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, purpose Purpose) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	msg := buildMessage(m.from, to, code, purpose)
	if err := m.deliver(ctx, to, []byte(msg)); err != nil {
		customLog.Errorf("Mailer: failed to send %s code to %s: %v", purpose, to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	customLog.Printf("Mailer: %s code sent to %s", purpose, to)
	return nil
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	conn, err := dialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	// Cancellation unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}
	if m.password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.from, m.password, m.host)); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, code string, purpose Purpose) string {
	subject := "Your verification code"
	body := fmt.Sprintf("Your signup verification code is %s. It expires in 5 minutes.", code)
	if purpose == PurposeReset {
		subject = "Your password reset code"
		body = fmt.Sprintf("Your password reset code is %s. It expires in 5 minutes.", code)
	}

	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", from))
	message.WriteString(fmt.Sprintf("To: %s\r\n", to))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	message.WriteString("\r\n")
	return message.String()
}

// LogMailer writes passcodes to the log instead of sending them. Used when
// no SMTP server is configured.
type LogMailer struct{}

func (LogMailer) SendOTP(_ context.Context, to, code string, purpose Purpose) error {
	customLog.Warnf("Mailer: SMTP not configured; %s code for %s is %s", purpose, to, code)
	return nil
}
