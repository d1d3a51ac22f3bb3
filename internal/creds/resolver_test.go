package creds

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/require"

	"github.com/steg2011/netvault/internal/models"
	appErr "github.com/steg2011/netvault/pkg/errors"
)

func testResolver(t *testing.T, fallbackUser, fallbackPass string) *Resolver {
	t.Helper()
	var key fernet.Key
	require.NoError(t, key.Generate())
	r, err := NewResolver(key.Encode(), fallbackUser, fallbackPass)
	require.NoError(t, err)
	return r
}

func TestSealUnsealRoundTrip(t *testing.T) {
	r := testResolver(t, "", "")
	sealed, err := r.Seal("s3cret!")
	require.NoError(t, err)
	require.NotContains(t, sealed, "s3cret!")

	plain, err := r.Unseal(sealed)
	require.NoError(t, err)
	require.Equal(t, "s3cret!", plain)
}

func TestResolveDeviceCredentialSet(t *testing.T) {
	r := testResolver(t, "fallback", "fallback-pass")
	sealed, err := r.Seal("device-pass")
	require.NoError(t, err)

	dev := &models.Device{CredentialSet: &models.CredentialSet{Username: "netops", SealedPassword: sealed}}
	c, err := r.Resolve(dev)
	require.NoError(t, err)
	require.Equal(t, "netops", c.Username)
	require.Equal(t, "device-pass", c.Password)
}

func TestResolveFallback(t *testing.T) {
	r := testResolver(t, "global-user", "global-pass")
	c, err := r.Resolve(&models.Device{})
	require.NoError(t, err)
	require.Equal(t, "global-user", c.Username)
	require.Equal(t, "global-pass", c.Password)
}

func TestResolveNoCredentials(t *testing.T) {
	r := testResolver(t, "", "")
	_, err := r.Resolve(&models.Device{})
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeNoCredentials))
}

func TestCorruptTokenIsDecryptErrorNotFallback(t *testing.T) {
	r := testResolver(t, "global-user", "global-pass")
	dev := &models.Device{CredentialSet: &models.CredentialSet{Username: "netops", SealedPassword: "not-a-token"}}
	_, err := r.Resolve(dev)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeCredentialDecrypt))
}

func TestWrongKeyIsDecryptError(t *testing.T) {
	a := testResolver(t, "", "")
	b := testResolver(t, "", "")
	sealed, err := a.Seal("pw")
	require.NoError(t, err)

	_, err = b.Unseal(sealed)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeCredentialDecrypt))
}
