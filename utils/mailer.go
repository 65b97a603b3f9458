package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/robotlab/labhub/config"
)

// ErrSMTPNotConfigured is returned when no SMTP host or sender is set.
var ErrSMTPNotConfigured = errors.New("smtp not configured")

// SendMail sends one HTML message to all recipients using SMTP settings from config.
// Recipients go in Bcc so members don't see each other's addresses.
func SendMail(to []string, subject, htmlBody string) error {
	cfg := config.Get()
	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		return ErrSMTPNotConfigured
	}
	if len(to) == 0 {
		return nil
	}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	msg := buildMessage(cfg.SMTPFromName, cfg.SMTPFrom, subject, htmlBody)

	if !cfg.SMTPTLS {
		// Plain SMTP without TLS (not recommended)
		return smtp.SendMail(addr, auth, cfg.SMTPFrom, to, msg)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	// ensure we don't hang forever
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	c, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if cfg.SMTPUsername != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.SMTPFrom); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(fromName, from, subject, htmlBody string) []byte {
	var msg strings.Builder
	msg.WriteString("From: " + mime.BEncoding.Encode("UTF-8", fromName) + " <" + from + ">\r\n")
	msg.WriteString("To: " + mime.BEncoding.Encode("UTF-8", "实验室成员") + " <" + from + ">\r\n")
	msg.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return []byte(msg.String())
}
