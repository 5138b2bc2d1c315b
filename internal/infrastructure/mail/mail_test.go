package mail

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivIntel/internal/config"
	"ArxivIntel/internal/ports"
)

var digestEmail = ports.Email{
	Subject: "ArXiv Intelligence Digest - 2 Papers (1 HIGH priority)",
	HTML:    "<h1>Digest</h1>",
	Text:    "Digest",
}

func TestSMTPMailerSend(t *testing.T) {
	m := NewSMTPMailer(config.EmailConfig{
		Host: "smtp.example.com", Port: 587, User: "bot@example.com", Password: "secret",
		From: "bot@example.com", To: "a@example.com, b@example.com",
	})
	m.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), digestEmail))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: ArXiv Intelligence Digest - 2 Papers (1 HIGH priority)\r\n")
	assert.Contains(t, msg, "Content-Type: multipart/alternative;")
	assert.Contains(t, msg, "text/plain; charset=UTF-8")
	assert.Contains(t, msg, "<h1>Digest</h1>")
	assert.Less(t, strings.Index(msg, "text/plain"), strings.Index(msg, "text/html"))
}

func TestSMTPMailerErrors(t *testing.T) {
	m := NewSMTPMailer(config.EmailConfig{Host: "h", Port: 25, From: "f@x"})
	assert.Error(t, m.Send(context.Background(), digestEmail))

	m = NewSMTPMailer(config.EmailConfig{Host: "h", Port: 25, From: "f@x", To: "t@x"})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return assert.AnError }
	assert.ErrorIs(t, m.Send(context.Background(), digestEmail), assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, digestEmail), context.Canceled)
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailerSend(t *testing.T) {
	client := &fakeSES{}
	m := NewSESMailer(client, "bot@example.com", "team@example.com")

	require.NoError(t, m.Send(context.Background(), digestEmail))

	require.NotNil(t, client.input)
	assert.Equal(t, "bot@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"team@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, digestEmail.Subject, aws.ToString(client.input.Message.Subject.Data))
	assert.Equal(t, digestEmail.HTML, aws.ToString(client.input.Message.Body.Html.Data))
	assert.Equal(t, digestEmail.Text, aws.ToString(client.input.Message.Body.Text.Data))
}

func TestSESMailerErrors(t *testing.T) {
	assert.ErrorIs(t, NewSESMailer(&fakeSES{err: assert.AnError}, "f@x", "t@x").Send(context.Background(), digestEmail), assert.AnError)
	assert.Error(t, NewSESMailer(&fakeSES{}, "f@x", "").Send(context.Background(), digestEmail))
}
