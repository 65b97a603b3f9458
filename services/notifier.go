package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/robotlab/labhub/config"
	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/utils"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Notifier delivers one message to many recipients.
type Notifier interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// CheckInNotice is what members need to know to check in.
type CheckInNotice struct {
	Campaign     string
	LocationName string
	Latitude     float64
	Longitude    float64
	Radius       float64
	Deadline     time.Time
}

// Render produces the subject and HTML body of the check-in alert.
func (n CheckInNotice) Render() (string, string) {
	subject := fmt.Sprintf("【点名通知】%s", n.Campaign)
	var b strings.Builder
	b.WriteString("<h2>点名通知</h2>")
	fmt.Fprintf(&b, "<p>点名任务：<strong>%s</strong></p>", html.EscapeString(n.Campaign))
	fmt.Fprintf(&b, "<p>截止时间：%s</p>", n.Deadline.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "<p>签到地点：%s</p>", html.EscapeString(n.LocationName))
	fmt.Fprintf(&b, "<p>签到范围：%.0f 米内</p>", n.Radius)
	fmt.Fprintf(&b, "<p>坐标：%.6f, %.6f</p>", n.Latitude, n.Longitude)
	b.WriteString("<p>请在截止时间前登录系统完成签到，未签到将被扣除积分。</p>")
	return subject, b.String()
}

// RequestOutcome tells a member how their point request was resolved.
type RequestOutcome struct {
	Name    string
	Points  int
	Reason  string
	Status  string
	Comment string
}

// Render produces the subject and HTML body of the outcome mail.
func (o RequestOutcome) Render() (string, string) {
	status := "已拒绝"
	if o.Status == models.RequestApproved {
		status = "已批准"
	}
	var b strings.Builder
	b.WriteString("<h2>积分异议处理结果</h2>")
	fmt.Fprintf(&b, "<p>申请人：%s</p>", html.EscapeString(o.Name))
	fmt.Fprintf(&b, "<p>申请积分：%+d 分</p>", o.Points)
	fmt.Fprintf(&b, "<p>申请理由：%s</p>", html.EscapeString(o.Reason))
	fmt.Fprintf(&b, "<p>处理结果：<strong>%s</strong></p>", status)
	if o.Comment != "" {
		fmt.Fprintf(&b, "<p>管理员备注：%s</p>", html.EscapeString(o.Comment))
	}
	return "【异议处理结果】您的积分异议申请已处理", b.String()
}

// SMTPNotifier sends through the configured SMTP relay.
type SMTPNotifier struct{}

func (SMTPNotifier) Send(_ context.Context, to []string, subject, htmlBody string) error {
	return utils.SendMail(to, subject, htmlBody)
}

// SendGridNotifier sends through the SendGrid v3 API, one personalization with all
// recipients in Bcc.
type SendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridNotifier(apiKey, fromEmail, fromName string) *SendGridNotifier {
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridNotifier) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return nil
	}
	from := mail.NewEmail(s.fromName, s.fromEmail)
	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = subject

	p := mail.NewPersonalization()
	p.AddTos(from)
	for _, addr := range to {
		p.AddBCCs(mail.NewEmail("", addr))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", htmlBody))

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogNotifier only logs. It is used when no mail transport is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Send(_ context.Context, to []string, subject, _ string) error {
	n.Logger.Info("notification (log only)", zap.String("subject", subject), zap.Int("recipients", len(to)))
	return nil
}

// NewNotifier picks the transport named by NotifyDriver, falling back on what is configured.
func NewNotifier(cfg config.AppConfig, logger *zap.Logger) Notifier {
	driver := cfg.NotifyDriver
	if driver == "" {
		switch {
		case cfg.SendGridAPIKey != "":
			driver = "sendgrid"
		case cfg.SMTPHost != "":
			driver = "smtp"
		default:
			driver = "log"
		}
	}
	switch driver {
	case "sendgrid":
		return NewSendGridNotifier(cfg.SendGridAPIKey, cfg.SMTPFrom, cfg.SMTPFromName)
	case "smtp":
		return SMTPNotifier{}
	default:
		return LogNotifier{Logger: logger}
	}
}
