package mailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// Notification 新消息邮件提醒的内容。
type Notification struct {
	To        string // 收件人邮箱地址
	ToName    string // 收件人显示名
	FromName  string // 站内发件人显示名
	Title     string // 消息标题
	MessageID string // 站内消息 ID
}

// Mailer 外发邮件提醒接口。
//
// 投递是尽力而为的：调用方在事务提交之后异步调用，
// 失败只记日志，绝不影响发送结果。
type Mailer interface {
	SendNotification(notification *Notification) error
}

// SMTPMailer 通过 SMTP 提交邮件提醒。
type SMTPMailer struct {
	addr     string
	username string
	password string
	from     string
	log      *zap.Logger
}

// NewSMTPMailer 创建 SMTP 邮件发送器。
func NewSMTPMailer(addr, username, password, from string, log *zap.Logger) *SMTPMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPMailer{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
		log:      log,
	}
}

// SendNotification 发送一封新消息提醒。
func (m *SMTPMailer) SendNotification(notification *Notification) error {
	var auth sasl.Client
	if m.username != "" {
		auth = sasl.NewPlainClient("", m.username, m.password)
	}

	body := buildNotificationBody(m.from, notification)
	err := gosmtp.SendMail(m.addr, auth, m.from, []string{notification.To}, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send notification mail: %w", err)
	}

	m.log.Debug("notification mail sent",
		zap.String("to", notification.To),
		zap.String("message_id", notification.MessageID),
	)
	return nil
}

// buildNotificationBody 构造 RFC 5322 格式的提醒邮件。
//
// 正文刻意不包含消息内容，只提示有新消息。
func buildNotificationBody(from string, notification *Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", notification.To)
	fmt.Fprintf(&b, "Subject: New message: %s\r\n", notification.Title)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", notification.ToName)
	fmt.Fprintf(&b, "%s sent you a message: %s\r\n", notification.FromName, notification.Title)
	b.WriteString("\r\nLog in to read it.\r\n")
	return b.String()
}

// LogMailer 只记录日志的邮件发送器，用于开发环境或未配置 SMTP 时。
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer 创建日志邮件发送器。
func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

// SendNotification 记录而不真正发送。
func (m *LogMailer) SendNotification(notification *Notification) error {
	m.log.Info("notification mail (log only)",
		zap.String("to", notification.To),
		zap.String("title", notification.Title),
		zap.String("message_id", notification.MessageID),
	)
	return nil
}
