package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/trubo/mail-gateway/internal/core"
)

// SendSMTP delivers directly over SMTP with implicit TLS (port 465 style).
func SendSMTP(ctx context.Context, cfg SMTPConfig, job core.MailJob) (Result, error) {
	if cfg.User == "" || cfg.Password == "" {
		return Result{}, &core.ProviderError{Message: "missing smtp credentials"}
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}

	msgID := fmt.Sprintf("<%d.%s>", len(job.To), cfg.User)
	msg, err := buildMessage(from, job, msgID)
	if err != nil {
		return Result{}, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp dial: %v", err)}
	}
	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp handshake: %v", err)}
	}
	defer c.Close()

	if err := c.Auth(smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)); err != nil {
		return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp auth: %v", err)}
	}
	if err := c.Mail(from); err != nil {
		return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp mail: %v", err)}
	}
	for _, rcpt := range job.To {
		if err := c.Rcpt(rcpt); err != nil {
			return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp rcpt %s: %v", rcpt, err)}
		}
	}
	w, err := c.Data()
	if err != nil {
		return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp data: %v", err)}
	}
	if _, err := w.Write(msg); err != nil {
		return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp write: %v", err)}
	}
	if err := w.Close(); err != nil {
		return Result{}, &core.ProviderError{Message: fmt.Sprintf("smtp close: %v", err)}
	}
	_ = c.Quit()
	return Result{ID: msgID}, nil
}

func buildMessage(from string, job core.MailJob, msgID string) ([]byte, error) {
	var buf bytes.Buffer
	write := func(format string, args ...any) {
		fmt.Fprintf(&buf, format+"\r\n", args...)
	}
	write("From: %s", from)
	write("To: %s", strings.Join(job.To, ", "))
	write("Subject: %s", job.Subject)
	write("Message-ID: %s", msgID)
	write("MIME-Version: 1.0")

	contentType := "text/plain; charset=utf-8"
	body := job.Text
	if job.HTML != "" {
		contentType = "text/html; charset=utf-8"
		body = job.HTML
	}

	if len(job.Attachments) == 0 {
		write("Content-Type: %s", contentType)
		write("")
		buf.WriteString(body)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	write("Content-Type: multipart/mixed; boundary=%s", mw.Boundary())
	write("")

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, err
	}

	for _, a := range job.Attachments {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Type", a.Type)
		hdr.Set("Content-Transfer-Encoding", "base64")
		hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
		part, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, err
		}
		// Attachment data arrives base64 on the wire already; pass through
		// if it decodes, re-encode raw bytes otherwise.
		data := a.Data
		if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
			data = base64.StdEncoding.EncodeToString([]byte(a.Data))
		}
		if _, err := part.Write([]byte(data)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
