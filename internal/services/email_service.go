package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/config"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
)

// EmailService sends the owner an email when a form receives a response.
// It is optional plumbing: disabled config turns every send into a no-op.
type EmailService struct {
	config *config.Config
}

func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{
		config: cfg,
	}
}

type emailData struct {
	To       string
	Subject  string
	Body     string
	Form     *models.FeedbackForm
	Response *models.FeedbackResponse
}

var responseEmailTemplate = template.Must(template.New("response").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4CAF50; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background-color: #f9f9f9; }
        .footer { padding: 20px; text-align: center; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>New Feedback Response</h1>
        </div>
        <div class="content">
            <p>Your form <strong>{{.Form.Title}}</strong> just received a new response.</p>
            <p>Response ID: {{.Response.ID}}</p>
            <p>Submitted at: {{.Response.SubmittedAt.Format "2006-01-02 15:04:05"}}</p>
        </div>
        <div class="footer">
            <p>Open the dashboard to review the full answers.</p>
        </div>
    </div>
</body>
</html>
`))

// SendResponseNotification emails the configured recipient about a fresh
// submission. Returns nil without sending when email is disabled or no
// recipient is configured.
func (es *EmailService) SendResponseNotification(form *models.FeedbackForm, response *models.FeedbackResponse) error {
	if !es.config.Email.Enabled || es.config.Email.NotifyTo == "" {
		return nil
	}

	data := emailData{
		To:       es.config.Email.NotifyTo,
		Subject:  fmt.Sprintf("New response: %s", form.Title),
		Form:     form,
		Response: response,
	}

	var buf bytes.Buffer
	if err := responseEmailTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	data.Body = buf.String()

	return es.sendEmail(data)
}

func (es *EmailService) sendEmail(data emailData) error {
	message := fmt.Sprintf(`To: %s
From: %s
Subject: %s
MIME-Version: 1.0
Content-Type: text/html; charset=UTF-8

%s`,
		data.To,
		es.config.Email.SMTP.From,
		data.Subject,
		data.Body,
	)

	addr := fmt.Sprintf("%s:%d", es.config.Email.SMTP.Host, es.config.Email.SMTP.Port)

	var auth smtp.Auth
	if es.config.Email.SMTP.Username != "" && es.config.Email.SMTP.Password != "" {
		auth = smtp.PlainAuth("",
			es.config.Email.SMTP.Username,
			es.config.Email.SMTP.Password,
			es.config.Email.SMTP.Host,
		)
	}

	if err := smtp.SendMail(addr, auth, es.config.Email.SMTP.From, []string{data.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
