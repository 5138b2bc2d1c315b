package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"ArxivIntel/internal/ports"
)

// SESAPI is the slice of the SES client the mailer needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer delivers digests through Amazon SES.
type SESMailer struct {
	client SESAPI
	from   string
	to     []string
}

var _ ports.Mailer = (*SESMailer)(nil)

// NewSESMailer wraps a configured SES client.
func NewSESMailer(client SESAPI, from, to string) *SESMailer {
	return &SESMailer{client: client, from: from, to: splitRecipients(to)}
}

// Send posts both the HTML and text bodies; SES picks the part per client.
func (m *SESMailer) Send(ctx context.Context, email ports.Email) error {
	if len(m.to) == 0 {
		return errors.New("ses mailer has no recipients")
	}

	body := &types.Body{}
	if email.HTML != "" {
		body.Html = &types.Content{Data: aws.String(email.HTML), Charset: aws.String("UTF-8")}
	}
	if email.Text != "" {
		body.Text = &types.Content{Data: aws.String(email.Text), Charset: aws.String("UTF-8")}
	}

	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: m.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Source: aws.String(m.from),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
