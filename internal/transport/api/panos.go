package api

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"

	"github.com/steg2011/netvault/internal/transport"
	appErr "github.com/steg2011/netvault/pkg/errors"
)

// keygenResponse is the envelope the PAN-OS XML API wraps an API key in.
type keygenResponse struct {
	Status string `xml:"status,attr"`
	Result struct {
		Key string `xml:"key"`
	} `xml:"result"`
}

// exportPanOS backs up a Palo Alto firewall: obtain an API key via keygen,
// then export the full configuration with it.
func exportPanOS(ctx context.Context, client *http.Client, target transport.Target) (string, error) {
	base := "https://" + target.Address + "/api/"

	q := url.Values{}
	q.Set("type", "keygen")
	q.Set("user", target.Username)
	q.Set("password", target.Password)
	body, status, err := get(ctx, client, base+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		return "", appErr.New(appErr.CodeAuthRejected, "keygen rejected credentials")
	}
	if status != http.StatusOK {
		return "", appErr.New(appErr.CodeProtocol, "keygen returned unexpected status").WithMeta("status", status)
	}

	var kr keygenResponse
	if err := xml.Unmarshal(body, &kr); err != nil {
		return "", appErr.Wrap(err, appErr.CodeProtocol, "keygen response is not valid XML")
	}
	if kr.Result.Key == "" {
		return "", appErr.New(appErr.CodeAuthRejected, "keygen returned no key")
	}

	q = url.Values{}
	q.Set("type", "export")
	q.Set("category", "configuration")
	q.Set("key", kr.Result.Key)
	body, status, err = get(ctx, client, base+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", appErr.New(appErr.CodeProtocol, "config export returned unexpected status").WithMeta("status", status)
	}
	return string(body), nil
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeTransport, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, classifyTransport(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, appErr.Wrap(err, appErr.CodeTransport, "read response body")
	}
	return body, resp.StatusCode, nil
}

func classifyTransport(err error) error {
	if ue, ok := err.(*url.Error); ok {
		if ue.Timeout() {
			return appErr.Wrap(err, appErr.CodeTimeout, "request timed out")
		}
	}
	return appErr.Wrap(err, appErr.CodeUnreachable, "device unreachable")
}
