package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	jemail "github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPProviderBuildsMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "Run <noreply@example.com>"})

	var got *jemail.Email
	var gotAddr string
	var gotAuth smtp.Auth
	p.send = func(e *jemail.Email, addr string, auth smtp.Auth) error {
		got, gotAddr, gotAuth = e, addr, auth
		return nil
	}

	err := p.Send(context.Background(), Message{
		To:      []string{"runner@example.com"},
		ReplyTo: "sender@example.com",
		Subject: "Hello",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "Run <noreply@example.com>", got.From)
	assert.Equal(t, []string{"runner@example.com"}, got.To)
	assert.Equal(t, []string{"sender@example.com"}, got.ReplyTo)
	assert.Equal(t, "Hello", got.Subject)
	assert.Equal(t, []byte("<p>hi</p>"), got.HTML)
}

func TestSMTPProviderWithoutCredentialsSkipsAuth(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 25})
	var gotAuth smtp.Auth = smtp.PlainAuth("", "x", "y", "z")
	p.send = func(_ *jemail.Email, _ string, auth smtp.Auth) error {
		gotAuth = auth
		return nil
	}
	require.NoError(t, p.Send(context.Background(), Message{To: []string{"a@x.com"}}))
	assert.Nil(t, gotAuth)
}

func TestSMTPProviderWrapsErrors(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 25})
	boom := errors.New("421 service not available")
	p.send = func(*jemail.Email, string, smtp.Auth) error { return boom }

	err := p.Send(context.Background(), Message{To: []string{"a@x.com"}})
	assert.ErrorIs(t, err, boom)
}

func TestSMTPProviderHonoursTimeout(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 25, Timeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	p.send = func(*jemail.Email, string, smtp.Auth) error {
		<-release
		return nil
	}

	err := p.Send(context.Background(), Message{To: []string{"a@x.com"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProvidersRequireRecipient(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, (&NoOpProvider{}).Send(ctx, Message{}), ErrNoRecipient)
	assert.ErrorIs(t, (&RecordingProvider{}).Send(ctx, Message{}), ErrNoRecipient)
	assert.ErrorIs(t, NewSMTP(Config{}).Send(ctx, Message{}), ErrNoRecipient)
}

func TestSMTPProviderAttachesFiles(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 25, From: "noreply@example.com"})

	var got *jemail.Email
	p.send = func(e *jemail.Email, addr string, auth smtp.Auth) error {
		got = e
		return nil
	}

	err := p.Send(context.Background(), Message{
		To:      []string{"runner@example.com"},
		Subject: "Receipt",
		HTML:    "<p>attached</p>",
		Attachments: []Attachment{{
			Filename:    "receipt-ORDER_1.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.3"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "receipt-ORDER_1.pdf", got.Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF-1.3"), got.Attachments[0].Content)
}
