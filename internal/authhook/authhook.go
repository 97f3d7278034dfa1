// Package authhook resolves the identity of a connecting sync client by
// delegating to an external auth service, grounded on
// original_source/sinkron/src/sinkron.rs's auth() function: POST the
// client's token to `<syncAuthUrl><token>` with an empty body; a 200
// response's body text is the user id. When no sync auth url is
// configured, every connection is treated as "anonymous".
package authhook

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sunflowerdeath/sinkron/internal/wire"
)

const defaultTimeout = 5 * time.Second

type Hook struct {
	url    string
	client *http.Client
}

func New(syncAuthUrl string) *Hook {
	return &Hook{
		url:    syncAuthUrl,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Authenticate resolves token to a user id. token may be empty for
// anonymous access when no auth url is configured.
func (h *Hook) Authenticate(ctx context.Context, token string) (string, *wire.Error) {
	if h.url == "" {
		return "anonymous", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+token, nil)
	if err != nil {
		return "", wire.Internal(err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", wire.AuthFailed("sync auth request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", wire.AuthFailed("sync auth service rejected token (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wire.Internal(err)
	}
	userId := strings.TrimSpace(string(body))
	if userId == "" {
		return "", wire.AuthFailed("sync auth service returned an empty user id")
	}
	return userId, nil
}
