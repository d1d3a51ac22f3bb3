// Package creds resolves device login credentials. Stored passwords are
// sealed as fernet tokens; the unseal key is read once at boot and never
// leaves this package.
package creds

import (
	"github.com/fernet/fernet-go"

	"github.com/steg2011/netvault/internal/models"
	appErr "github.com/steg2011/netvault/pkg/errors"
)

// Credentials is a resolved username/password pair. The plaintext password
// lives only for the scope of a single device backup and must never be
// logged, published, or persisted.
type Credentials struct {
	Username string
	Password string
}

// Resolver resolves (device) -> credentials using the device's credential
// set first, then the process-wide fallback pair, then failing.
type Resolver struct {
	key          *fernet.Key
	fallbackUser string
	fallbackPass string
}

// NewResolver parses the base64 fernet key and captures the optional
// fallback credentials.
func NewResolver(fernetKey, fallbackUser, fallbackPass string) (*Resolver, error) {
	key, err := fernet.DecodeKey(fernetKey)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid fernet key")
	}
	return &Resolver{key: key, fallbackUser: fallbackUser, fallbackPass: fallbackPass}, nil
}

// Resolve returns the credentials for a device.
//
// Resolution order, first match wins:
//  1. the device's credential set, unsealing the stored password
//  2. the process-wide fallback pair when both halves are configured
//  3. no_credentials
//
// An unseal failure is a credential_decrypt error, not a fallback trigger.
func (r *Resolver) Resolve(device *models.Device) (Credentials, error) {
	if device.CredentialSet != nil {
		pass, err := r.Unseal(device.CredentialSet.SealedPassword)
		if err != nil {
			return Credentials{}, err
		}
		return Credentials{Username: device.CredentialSet.Username, Password: pass}, nil
	}
	if r.fallbackUser != "" && r.fallbackPass != "" {
		return Credentials{Username: r.fallbackUser, Password: r.fallbackPass}, nil
	}
	return Credentials{}, appErr.New(appErr.CodeNoCredentials, "no credentials available for device")
}

// Seal encrypts a plaintext password into a fernet token for storage.
func (r *Resolver) Seal(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), r.key)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "seal password failed")
	}
	return string(tok), nil
}

// Unseal decrypts a stored fernet token. Tokens do not expire.
func (r *Resolver) Unseal(sealed string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(sealed), 0, []*fernet.Key{r.key})
	if msg == nil {
		return "", appErr.New(appErr.CodeCredentialDecrypt, "could not unseal stored password")
	}
	return string(msg), nil
}
