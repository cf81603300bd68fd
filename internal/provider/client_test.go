package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/provider/memory"
	"github.com/tazhibayda/feed-service/internal/security"
)

func init() { security.BcryptCost = 4 }

func TestClient_AuthStateListeners(t *testing.T) {
	ctx := context.Background()
	c := provider.NewClient(memory.New())

	var states []*provider.Identity
	unsub := c.OnAuthStateChanged(func(id *provider.Identity) { states = append(states, id) })
	assert.Empty(t, states, "unresolved client must not fire")

	require.NoError(t, c.Resolve(ctx, ""))
	require.Len(t, states, 1)
	assert.Nil(t, states[0])

	id, err := c.CreateUserWithEmailAndPassword(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, id.UID, states[1].UID)
	assert.Equal(t, id.UID, c.CurrentUser().UID)

	require.NoError(t, c.SignOut(ctx))
	require.Len(t, states, 3)
	assert.Nil(t, states[2])
	assert.Nil(t, c.CurrentUser())

	unsub()
	_, err = c.SignInWithEmailAndPassword(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, states, 3)
}

func TestClient_ResolveFromToken(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	first := provider.NewClient(b)
	id, err := first.CreateUserWithEmailAndPassword(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	second := provider.NewClient(b)
	require.NoError(t, second.Resolve(ctx, id.Token))
	assert.Equal(t, id.UID, second.CurrentUser().UID)

	var fired *provider.Identity
	second.OnAuthStateChanged(func(i *provider.Identity) { fired = i })
	require.NotNil(t, fired, "resolved client fires immediately")
	assert.Equal(t, id.UID, fired.UID)

	third := provider.NewClient(b)
	err = third.Resolve(ctx, "bogus")
	assert.Equal(t, provider.CodeInvalidToken, provider.Code(err))
	assert.Nil(t, third.CurrentUser())
}

func TestClient_ConfirmEmailOnlyMarksOwnAccount(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	alice := provider.NewClient(b)
	aliceID, err := alice.CreateUserWithEmailAndPassword(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	bob := provider.NewClient(b)
	bobID, err := bob.CreateUserWithEmailAndPassword(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)

	var states []*provider.Identity
	alice.OnAuthStateChanged(func(id *provider.Identity) { states = append(states, id) })
	states = nil

	require.NoError(t, alice.ConfirmEmail(ctx, bobID.VerificationCode))
	assert.False(t, alice.CurrentUser().EmailVerified, "another account's code must not verify the caller")
	assert.Empty(t, states)

	fresh, err := b.VerifyToken(ctx, bobID.Token)
	require.NoError(t, err)
	assert.True(t, fresh.EmailVerified)

	require.NoError(t, alice.ConfirmEmail(ctx, aliceID.VerificationCode))
	assert.True(t, alice.CurrentUser().EmailVerified)
	assert.Equal(t, aliceID.Token, alice.CurrentUser().Token)
	require.Len(t, states, 1)
	assert.True(t, states[0].EmailVerified)
}

func TestNormalizeEmail(t *testing.T) {
	for in, ok := range map[string]bool{
		"a@b.com":          true,
		"  Mixed@Case.IO ": true,
		"a@b":              false,
		"no-at.com":        false,
		"A <a@b.com>":      false,
		"":                 false,
	} {
		_, err := provider.NormalizeEmail(in)
		assert.Equal(t, ok, err == nil, in)
	}
}
