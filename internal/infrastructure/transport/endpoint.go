package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointFromPage derives the channel endpoint from the page the client is
// served under: the scheme becomes ws or wss and "/ws" is appended to the
// page path. Websocket URLs are returned unchanged.
func EndpointFromPage(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return pageURL, nil
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid page URL %q: missing host", pageURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
