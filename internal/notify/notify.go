// Package notify はユーザー向けメール通知を提供する。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Notifier はユーザーへの通知送信のインターフェース。
type Notifier interface {
	// SendWelcome はアカウント作成完了の案内を送信する。
	SendWelcome(ctx context.Context, email, firstName string) error
}

const welcomeSubject = "Welcome to Silver Lens!"

// welcomeBody はウェルカムメールの本文を生成する。
func welcomeBody(firstName string) string {
	return fmt.Sprintf("Dear %s,\r\n\r\n"+
		"Your account has been created successfully. Use your email and password to log in.\r\n\r\n"+
		"Best Regards,\r\nSilver Lens Team\r\n", firstName)
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendMailFunc はsmtp.SendMailのシグネチャ。テストで差し替える。
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier はSMTPでメールを送信するNotifier。
type SMTPNotifier struct {
	config   SMTPConfig
	sendMail sendMailFunc
}

// NewSMTPNotifier はSMTPNotifierを生成する。
func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	if config.Port == 0 {
		config.Port = 587
	}
	if config.From == "" {
		config.From = config.Username
	}
	return &SMTPNotifier{config: config, sendMail: smtp.SendMail}
}

// SendWelcome はウェルカムメールを送信する。
func (n *SMTPNotifier) SendWelcome(ctx context.Context, email, firstName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("invalid recipient address")
	}

	msg := buildMessage(n.config.From, email, welcomeSubject, welcomeBody(firstName))

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))
	if err := n.sendMail(addr, auth, n.config.From, []string{email}, msg); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}

	slog.Info("welcome email sent", slog.String("email", email))
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// LogNotifier は送信せずにログへ記録するNotifier。SMTP未設定時に使用する。
type LogNotifier struct{}

// SendWelcome はウェルカム通知をログに記録する。
func (LogNotifier) SendWelcome(_ context.Context, email, _ string) error {
	slog.Info("welcome notification skipped (smtp not configured)", slog.String("email", email))
	return nil
}

// compile-time interface checks
var (
	_ Notifier = (*SMTPNotifier)(nil)
	_ Notifier = LogNotifier{}
)
