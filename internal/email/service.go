// Package email sends transactional mail over SMTP: account verification,
// password resets, and deadline reminders to PICs.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"cadence/api/internal/store"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		send:   smtp.SendMail,
	}
}

// IsConfigured reports whether SMTP settings are present. Unconfigured mail
// is a soft failure everywhere; the product works without it.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-cadence"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type verificationData struct {
	UserName        string
	VerificationURL string
}

type passwordResetData struct {
	UserName string
	ResetURL string
}

type reminderData struct {
	UserName string
	Items    []reminderItem
}

type reminderItem struct {
	Title    string
	Platform string
	Deadline string
	Status   string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	html, err := renderTemplate(verificationEmailTemplate, verificationData{
		UserName:        userName,
		VerificationURL: verificationURL,
	})
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Verify your Cadence account", html)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	html, err := renderTemplate(passwordResetEmailTemplate, passwordResetData{
		UserName: userName,
		ResetURL: resetURL,
	})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Reset your Cadence password", html)
}

// SendDeadlineReminder mails a PIC the items of theirs that are due soon or
// overdue.
func (s *Service) SendDeadlineReminder(to, userName string, items []store.ContentItem) error {
	if len(items) == 0 {
		return nil
	}
	data := reminderData{UserName: userName}
	for _, item := range items {
		data.Items = append(data.Items, reminderItem{
			Title:    item.Title,
			Platform: item.Platform,
			Deadline: item.Deadline,
			Status:   item.Status,
		})
	}
	html, err := renderTemplate(reminderEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render reminder template: %w", err)
	}
	subject := fmt.Sprintf("Cadence: %d item(s) need attention", len(items))
	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
.header { border-bottom: 2px solid #5b21b6; padding-bottom: 10px; margin-bottom: 20px; }
.button { display: inline-block; padding: 12px 24px; background: #5b21b6; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
.footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
.link { word-break: break-all; color: #5b21b6; }
table { width: 100%; border-collapse: collapse; }
th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #eee; }`

const verificationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your Cadence account</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h2>Cadence</h2></div>
    <p>Hi {{.UserName}},</p>
    <p>Confirm your email address to start tracking content:</p>
    <p><a class="button" href="{{.VerificationURL}}">Verify email</a></p>
    <p>Or open this link: <span class="link">{{.VerificationURL}}</span></p>
    <div class="footer">If you did not create this account, ignore this email.</div>
</body>
</html>`

const passwordResetEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your Cadence password</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h2>Cadence</h2></div>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password. The link is valid for one hour:</p>
    <p><a class="button" href="{{.ResetURL}}">Reset password</a></p>
    <p>Or open this link: <span class="link">{{.ResetURL}}</span></p>
    <div class="footer">If you did not request this, ignore this email; your password is unchanged.</div>
</body>
</html>`

const reminderEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Deadline reminder</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h2>Cadence</h2></div>
    <p>Hi {{.UserName}},</p>
    <p>These items of yours are due soon or overdue:</p>
    <table>
        <tr><th>Title</th><th>Platform</th><th>Status</th><th>Deadline</th></tr>
        {{range .Items}}<tr><td>{{.Title}}</td><td>{{.Platform}}</td><td>{{.Status}}</td><td>{{.Deadline}}</td></tr>{{end}}
    </table>
    <div class="footer">You receive this because you are the PIC on the items above.</div>
</body>
</html>`
