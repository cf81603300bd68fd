package mail_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhibayda/feed-service/internal/mail"
	"github.com/tazhibayda/feed-service/internal/queue"
)

type outbox struct {
	sent []mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, m mail.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, m)
	return nil
}

func event(t *testing.T, ev queue.UserRegistered) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleRegistered_MailsLink(t *testing.T) {
	box := &outbox{}
	h := mail.HandleRegistered(box, "https://feed.example.com/")

	err := h(context.Background(), event(t, queue.UserRegistered{UserID: "u1", Email: "a@b.com", VerifyCode: "c0de+/x"}))
	require.NoError(t, err)
	require.Len(t, box.sent, 1)
	assert.Equal(t, "a@b.com", box.sent[0].To)
	assert.Contains(t, box.sent[0].Body, "https://feed.example.com/api/auth/verify?code=c0de%2B%2Fx")
}

func TestHandleRegistered_DropsMalformed(t *testing.T) {
	box := &outbox{}
	h := mail.HandleRegistered(box, "http://localhost:8080")

	err := h(context.Background(), []byte("{"))
	assert.ErrorIs(t, err, queue.ErrPermanent)

	err = h(context.Background(), event(t, queue.UserRegistered{UserID: "u1", Email: "a@b.com"}))
	assert.ErrorIs(t, err, queue.ErrPermanent)
	assert.Empty(t, box.sent)
}

func TestHandleRegistered_SendFailureIsRetryable(t *testing.T) {
	box := &outbox{err: errors.New("relay down")}
	h := mail.HandleRegistered(box, "http://localhost:8080")

	err := h(context.Background(), event(t, queue.UserRegistered{UserID: "u1", Email: "a@b.com", VerifyCode: "x"}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, queue.ErrPermanent))
}

func TestVerificationLink(t *testing.T) {
	assert.Equal(t, "http://h/api/auth/verify?code=abc", mail.VerificationLink("http://h", "abc"))
	assert.True(t, strings.HasPrefix(mail.VerificationLink("http://h//", "abc"), "http://h/api/"))
}
