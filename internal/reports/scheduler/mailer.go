package scheduler

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailMessage is one outbound report email
type EmailMessage struct {
	To         []string
	Subject    string
	Body       string
	Attachment *Attachment
}

// Attachment is the exported artifact attached to a report email
type Attachment struct {
	Name        string
	Data        []byte
	ContentType string
}

// Mailer sends report emails
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// SMTPMailer sends mail through a plain SMTP relay
type SMTPMailer struct {
	host        string
	port        int
	username    string
	password    string
	fromAddress string
	fromName    string
}

// NewSMTPMailer creates an SMTP-backed mailer
func NewSMTPMailer(host string, port int, username, password, fromAddress, fromName string) *SMTPMailer {
	return &SMTPMailer{
		host:        host,
		port:        port,
		username:    username,
		password:    password,
		fromAddress: fromAddress,
		fromName:    fromName,
	}
}

func (m *SMTPMailer) Send(_ context.Context, msg *EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	raw := buildMIMEMessage(m.fromName, m.fromAddress, msg)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := smtp.SendMail(addr, auth, m.fromAddress, msg.To, raw); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// SESMailer sends mail through Amazon SES
type SESMailer struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
}

// NewSESMailer creates an SES-backed mailer using the default AWS
// credential chain
func NewSESMailer(ctx context.Context, region, fromAddress, fromName string) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SESMailer{
		client:      sesv2.NewFromConfig(cfg),
		fromAddress: fromAddress,
		fromName:    fromName,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, msg *EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	raw := buildMIMEMessage(m.fromName, m.fromAddress, msg)
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.fromAddress),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}

// buildMIMEMessage assembles a multipart/mixed message with the artifact
// attached base64-encoded
func buildMIMEMessage(fromName, fromAddress string, msg *EmailMessage) []byte {
	var buf bytes.Buffer
	boundary := "----report-boundary-7f3c1a"

	buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, fromAddress))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if msg.Attachment == nil {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes()
	}

	buf.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary))

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString(fmt.Sprintf("Content-Type: %s; name=%q\r\n", msg.Attachment.ContentType, msg.Attachment.Name))
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", msg.Attachment.Name))

	encoded := base64.StdEncoding.EncodeToString(msg.Attachment.Data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return buf.Bytes()
}
