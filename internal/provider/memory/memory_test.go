package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/security"
)

func init() { security.BcryptCost = 4 }

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	b := New()

	id, err := b.CreateAccount(ctx, " A@B.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", id.Email)
	assert.NotEmpty(t, id.Token)
	assert.NotEmpty(t, id.VerificationCode)
	assert.False(t, id.EmailVerified)

	_, err = b.CreateAccount(ctx, "a@b.com", "secret1")
	assert.Equal(t, provider.CodeEmailInUse, provider.Code(err))
	_, err = b.CreateAccount(ctx, "not-an-email", "secret1")
	assert.Equal(t, provider.CodeInvalidEmail, provider.Code(err))
	_, err = b.CreateAccount(ctx, "c@d.com", "12345")
	assert.Equal(t, provider.CodeWeakPassword, provider.Code(err))

	_, err = b.SignIn(ctx, "a@b.com", "wrong!!")
	assert.Equal(t, provider.CodeInvalidCredential, provider.Code(err))
	_, err = b.SignIn(ctx, "nobody@b.com", "secret1")
	assert.Equal(t, provider.CodeInvalidCredential, provider.Code(err))

	signed, err := b.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	got, err := b.VerifyToken(ctx, signed.Token)
	require.NoError(t, err)
	assert.Equal(t, id.UID, got.UID)

	require.NoError(t, b.SignOut(ctx, signed.Token))
	_, err = b.VerifyToken(ctx, signed.Token)
	assert.Equal(t, provider.CodeInvalidToken, provider.Code(err))

	require.NoError(t, b.ConfirmEmail(ctx, id.VerificationCode))
	again, err := b.VerifyToken(ctx, id.Token)
	require.NoError(t, err)
	assert.True(t, again.EmailVerified)
	assert.Equal(t, provider.CodeInvalidCode, provider.Code(b.ConfirmEmail(ctx, id.VerificationCode)))

	b.DisableAccount("a@b.com")
	_, err = b.SignIn(ctx, "a@b.com", "secret1")
	assert.Equal(t, provider.CodeUserDisabled, provider.Code(err))
}

func TestSignIn_Throttled(t *testing.T) {
	ctx := context.Background()
	b := New()
	b.MaxFailedSignIns = 2
	_, err := b.CreateAccount(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = b.SignIn(ctx, "a@b.com", "nope!!")
		require.Equal(t, provider.CodeInvalidCredential, provider.Code(err))
	}
	_, err = b.SignIn(ctx, "a@b.com", "secret1")
	assert.Equal(t, provider.CodeTooManyRequests, provider.Code(err))
}

func TestQuery_OrderFilterLimit(t *testing.T) {
	ctx := context.Background()
	b := New()
	me := &provider.Identity{UID: "u1"}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, cat := range []string{"Go", "General", "Go", "Go"} {
		_, err := b.Add(ctx, me, provider.Posts, map[string]any{
			"content":   string(rune('a' + i)),
			"category":  cat,
			"userId":    "u1",
			"createdAt": base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	docs, err := b.Query(ctx, me, provider.Query{
		Collection: provider.Posts, OrderBy: "createdAt", Descending: true, Limit: 2,
	}.Where("category", "Go"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d", docs[0].Data["content"])
	assert.Equal(t, "c", docs[1].Data["content"])

	all, err := b.Query(ctx, me, provider.Query{Collection: provider.Posts, OrderBy: "createdAt"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].Data["content"])
}

func TestAccessPolicy(t *testing.T) {
	ctx := context.Background()
	b := New()
	me := &provider.Identity{UID: "u1"}

	_, err := b.Add(ctx, nil, provider.Posts, map[string]any{"userId": "u1"})
	assert.Equal(t, provider.CodePermissionDenied, provider.Code(err))
	_, err = b.Add(ctx, me, provider.Posts, map[string]any{"userId": "u2"})
	assert.Equal(t, provider.CodePermissionDenied, provider.Code(err))
	_, err = b.Add(ctx, me, provider.Categories, map[string]any{"createdBy": "u2"})
	assert.Equal(t, provider.CodePermissionDenied, provider.Code(err))

	require.NoError(t, b.Set(ctx, me, provider.Users, "u1", map[string]any{"email": "a@b.com"}, false))
	_, err = b.Get(ctx, &provider.Identity{UID: "u2"}, provider.Users, "u1")
	assert.Equal(t, provider.CodePermissionDenied, provider.Code(err))

	require.NoError(t, b.Set(ctx, me, provider.Users, "u1", map[string]any{"lastLogin": "now"}, true))
	doc, err := b.Get(ctx, me, provider.Users, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", doc.Data["email"], "merge keeps existing fields")
	assert.Equal(t, "now", doc.Data["lastLogin"])

	_, err = b.Get(ctx, me, provider.Users, "missing")
	assert.Equal(t, provider.CodePermissionDenied, provider.Code(err))
}

type snapshots struct {
	mu  sync.Mutex
	got [][]provider.Document
}

func (s *snapshots) add(d []provider.Document) {
	s.mu.Lock()
	s.got = append(s.got, d)
	s.mu.Unlock()
}

func (s *snapshots) last() []provider.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.got) == 0 {
		return nil
	}
	return s.got[len(s.got)-1]
}

func (s *snapshots) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestListen_DeliversChangesUntilUnsubscribed(t *testing.T) {
	ctx := context.Background()
	b := New()
	me := &provider.Identity{UID: "u1"}
	var snaps snapshots

	unsub := b.Listen(me, provider.Query{Collection: provider.Categories, OrderBy: "createdAt"},
		snaps.add, func(err error) { t.Errorf("unexpected error: %v", err) })

	require.Eventually(t, func() bool { return snaps.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, snaps.last())

	_, err := b.Add(ctx, me, provider.Categories, map[string]any{"name": "Go", "createdBy": "u1", "createdAt": time.Now()})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(snaps.last()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, b.Listeners())
	unsub()
	unsub()
	assert.Equal(t, 0, b.Listeners())

	n := snaps.count()
	_, err = b.Add(ctx, me, provider.Categories, map[string]any{"name": "Rust", "createdBy": "u1", "createdAt": time.Now()})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, snaps.count())
}

func TestListen_Error(t *testing.T) {
	b := New()
	b.SetQueryError(errors.New("boom"))
	errs := make(chan error, 1)
	b.Listen(&provider.Identity{UID: "u1"}, provider.Query{Collection: provider.Posts},
		func([]provider.Document) { t.Error("no snapshot expected") },
		func(err error) { errs <- err })

	select {
	case err := <-errs:
		assert.Equal(t, provider.CodeUnavailable, provider.Code(err))
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
	assert.Equal(t, 0, b.Listeners())
}
