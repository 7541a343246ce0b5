// Package mail は送信メールの組み立てと送信を提供します。
package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"
)

// Message は送信する1通のメールです。
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender はメールを送信します。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender は SMTP サーバー経由で送信します。
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send は PLAIN 認証で SMTP 送信します。ユーザー名が空なら認証しません。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	if err := smtp.SendMail(addr, auth, s.From, []string{msg.To}, s.render(msg)); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) render(msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return buf.Bytes()
}

// LogSender は送信せずにログへ出力します。開発環境向けです。
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.Info("mail (not sent)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

var otpBody = template.Must(template.New("otp").Parse(`Hello {{.Name}},

Your ResearchMate verification code is {{.Code}}.
It expires in {{.Minutes}} minutes.

If you did not sign up, you can ignore this email.
`))

// OTPMessage は検証コード通知メールを組み立てます。
func OTPMessage(to, name, code string, ttl time.Duration) (Message, error) {
	if name == "" {
		name = to
	}
	var body bytes.Buffer
	err := otpBody.Execute(&body, struct {
		Name    string
		Code    string
		Minutes int
	}{Name: name, Code: code, Minutes: int(ttl.Minutes())})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Your ResearchMate verification code",
		Body:    body.String(),
	}, nil
}

// DirectNotifier はリクエスト内で同期的に OTP メールを送ります。
type DirectNotifier struct {
	Sender Sender
	TTL    time.Duration
}

// NotifyOTP は検証コードを送信します。
func (n *DirectNotifier) NotifyOTP(ctx context.Context, email, name, code string) error {
	msg, err := OTPMessage(email, name, code, n.TTL)
	if err != nil {
		return err
	}
	return n.Sender.Send(ctx, msg)
}
