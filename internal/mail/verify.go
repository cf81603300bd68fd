package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tazhibayda/feed-service/internal/queue"
)

const verifySubject = "Confirm your email"

// VerificationLink is the confirmation URL for code under base.
func VerificationLink(base, code string) string {
	return strings.TrimRight(base, "/") + "/api/auth/verify?code=" + url.QueryEscape(code)
}

// HandleRegistered mails the confirmation link carried by a user.registered
// event. Events without a code or address are malformed and dropped.
func HandleRegistered(s Sender, baseURL string) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var ev queue.UserRegistered
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode %s: %v: %w", queue.KeyUserRegistered, err, queue.ErrPermanent)
		}
		if ev.Email == "" || ev.VerifyCode == "" {
			return fmt.Errorf("%s for %q has no address or code: %w", queue.KeyUserRegistered, ev.UserID, queue.ErrPermanent)
		}
		return s.Send(ctx, Message{
			To:      ev.Email,
			Subject: verifySubject,
			Body: "Welcome to the feed.\n\nConfirm your email address by opening this link:\n" +
				VerificationLink(baseURL, ev.VerifyCode) + "\n",
		})
	}
}
