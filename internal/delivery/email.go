package delivery

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/rs/zerolog/log"
)

// smtpDialTimeout is swappable so tests can substitute a pipe for a
// live SMTP connection.
var smtpDialTimeout = net.DialTimeout

// EmailConfig holds SMTP settings for report delivery.
type EmailConfig struct {
	SMTPHost      string `json:"smtpHost"`
	SMTPPort      int    `json:"smtpPort"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	From          string `json:"from"`
	TLS           bool   `json:"tls"`      // implicit TLS (port 465)
	StartTLS      bool   `json:"startTLS"` // STARTTLS upgrade (port 587)
	SkipTLSVerify bool   `json:"skipTLSVerify"`
}

// EmailMessage is one outbound report notification.
type EmailMessage struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte // PDF bytes; nil sends a link-only message
}

// EmailSender delivers report notifications over SMTP.
type EmailSender struct {
	config EmailConfig
}

// NewEmailSender creates a sender from the given config.
func NewEmailSender(config EmailConfig) *EmailSender {
	return &EmailSender{config: config}
}

// Send delivers one message to one recipient. The connection mode is
// selected from the config: implicit TLS, STARTTLS, or plain.
func (e *EmailSender) Send(msg EmailMessage) error {
	if e.config.SMTPHost == "" {
		return fmt.Errorf("SMTP host not configured")
	}

	payload, err := e.buildMessage(msg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	switch {
	case e.config.TLS:
		err = e.sendTLS(addr, msg.To, payload)
	case e.config.StartTLS:
		err = e.sendStartTLS(addr, msg.To, payload)
	default:
		err = e.sendPlain(addr, msg.To, payload)
	}
	if err != nil {
		return err
	}

	log.Info().Str("to", msg.To).Bool("attachment", msg.Attachment != nil).Msg("Email sent")
	return nil
}

// buildMessage assembles the RFC 822 payload; with an attachment it
// becomes a multipart/mixed message with the PDF base64-encoded.
func (e *EmailSender) buildMessage(msg EmailMessage) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if msg.Attachment == nil {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := textPart.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("failed to write text part: %w", err)
	}

	name := msg.AttachmentName
	if name == "" {
		name = "report.pdf"
	}
	pdfPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/pdf"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment part: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(msg.Attachment)
	// Wrap base64 lines at 76 characters.
	for len(encoded) > 0 {
		n := 76
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := pdfPart.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return nil, fmt.Errorf("failed to write attachment: %w", err)
		}
		encoded = encoded[n:]
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *EmailSender) sendPlain(addr, to string, payload []byte) error {
	conn, err := smtpDialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("SMTP dial failed: %w", err)
	}
	client, err := smtp.NewClient(conn, e.config.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer client.Close()
	return e.transact(client, to, payload)
}

func (e *EmailSender) sendTLS(addr, to string, payload []byte) error {
	tlsConfig := &tls.Config{
		ServerName:         e.config.SMTPHost,
		InsecureSkipVerify: e.config.SkipTLSVerify,
	}
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	client, err := smtp.NewClient(conn, e.config.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer client.Close()
	return e.transact(client, to, payload)
}

func (e *EmailSender) sendStartTLS(addr, to string, payload []byte) error {
	conn, err := smtpDialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("SMTP dial failed: %w", err)
	}
	client, err := smtp.NewClient(conn, e.config.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{
		ServerName:         e.config.SMTPHost,
		InsecureSkipVerify: e.config.SkipTLSVerify,
	}); err != nil {
		return fmt.Errorf("STARTTLS upgrade failed: %w", err)
	}
	return e.transact(client, to, payload)
}

// transact runs the MAIL/RCPT/DATA exchange on an established client.
func (e *EmailSender) transact(client *smtp.Client, to string, payload []byte) error {
	if e.config.Username != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}
	if err := client.Mail(e.config.From); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return client.Quit()
}
