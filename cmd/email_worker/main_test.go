package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senecalabs/seneca-accounts/pkg/mailer"
)

type fakeSender struct {
	err   error
	sends int
	last  struct{ to, subject string }
}

func (f *fakeSender) Send(_ context.Context, to, subject, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sends++
	f.last.to = to
	f.last.subject = subject
	return nil
}

func jobBody(t *testing.T, job mailer.EmailJob) []byte {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return b
}

func TestHandleDeliverySuccess(t *testing.T) {
	mg := &fakeSender{}
	body := jobBody(t, mailer.EmailJob{To: "ada@example.com", Subject: "hi", Text: "hello"})

	ack, requeue := handleDelivery(context.Background(), mg, body, false)
	assert.True(t, ack)
	assert.False(t, requeue)
	assert.Equal(t, 1, mg.sends)
	assert.Equal(t, "ada@example.com", mg.last.to)
}

func TestHandleDeliveryRendersTemplate(t *testing.T) {
	mg := &fakeSender{}
	body := jobBody(t, mailer.EmailJob{
		To:       "ada@example.com",
		Template: "login_notification",
		Data:     map[string]any{"Name": "Ada", "Email": "ada@example.com", "Time": "now"},
	})

	ack, _ := handleDelivery(context.Background(), mg, body, false)
	assert.True(t, ack)
	assert.Equal(t, "New sign-in to your account", mg.last.subject)
}

func TestHandleDeliveryDropsBadMessages(t *testing.T) {
	mg := &fakeSender{}

	ack, requeue := handleDelivery(context.Background(), mg, []byte("{not json"), false)
	assert.False(t, ack)
	assert.False(t, requeue)

	ack, requeue = handleDelivery(context.Background(), mg, jobBody(t, mailer.EmailJob{Subject: "no recipient"}), false)
	assert.False(t, ack)
	assert.False(t, requeue)

	ack, requeue = handleDelivery(context.Background(), mg, jobBody(t, mailer.EmailJob{To: "a@b.c", Template: "unknown"}), false)
	assert.False(t, ack)
	assert.False(t, requeue)

	assert.Equal(t, 0, mg.sends)
}

func TestHandleDeliveryRetriesSendOnce(t *testing.T) {
	mg := &fakeSender{err: errors.New("gateway down")}
	body := jobBody(t, mailer.EmailJob{To: "ada@example.com", Subject: "hi", Text: "hello"})

	// First failure goes back on the queue.
	ack, requeue := handleDelivery(context.Background(), mg, body, false)
	assert.False(t, ack)
	assert.True(t, requeue)

	// A redelivered failure is dropped, not requeued forever.
	ack, requeue = handleDelivery(context.Background(), mg, body, true)
	assert.False(t, ack)
	assert.False(t, requeue)
}
