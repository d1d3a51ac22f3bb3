package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/steg2011/netvault/internal/transport"
	appErr "github.com/steg2011/netvault/pkg/errors"
)

type fortiLoginResponse struct {
	Token string `json:"token"`
}

// exportFortiOS backs up a FortiGate: authenticate against the REST API,
// then download the global configuration backup with the bearer token.
func exportFortiOS(ctx context.Context, client *http.Client, target transport.Target) (string, error) {
	base := "https://" + target.Address

	loginBody, err := json.Marshal(map[string]string{
		"username": target.Username,
		"password": target.Password,
	})
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "marshal login body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v2/auth/login", bytes.NewReader(loginBody))
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "build login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return "", appErr.Wrap(readErr, appErr.CodeTransport, "read login response")
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return "", appErr.New(appErr.CodeAuthRejected, "login rejected credentials")
	}
	if resp.StatusCode != http.StatusOK {
		return "", appErr.New(appErr.CodeProtocol, "login returned unexpected status").WithMeta("status", resp.StatusCode)
	}

	// The bearer token arrives in the response body on current firmware and
	// in a cookie on older releases.
	token := ""
	var lr fortiLoginResponse
	if err := json.Unmarshal(body, &lr); err == nil {
		token = lr.Token
	}
	if token == "" {
		for _, c := range resp.Cookies() {
			if c.Name == "APSCOOKIE" || c.Name == "token" {
				token = c.Value
				break
			}
		}
	}
	if token == "" {
		return "", appErr.New(appErr.CodeProtocol, "login response carried no token")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v2/monitor/system/config/backup?scope=global", nil)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "build backup request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err = client.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", appErr.New(appErr.CodeProtocol, "config backup returned unexpected status").WithMeta("status", resp.StatusCode)
	}
	cfg, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeTransport, "read config backup")
	}
	return string(cfg), nil
}
