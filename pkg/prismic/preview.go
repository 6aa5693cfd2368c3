package prismic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// PreviewCookie carries the preview ref between requests while an editor is
// previewing unpublished content.
const PreviewCookie = "io.prismic.preview"

type previewSession struct {
	MainDocument string `json:"mainDocument"`
}

// PreviewSession resolves a preview token to the site path of the previewed
// document. It returns defaultURL when the session does not name a document.
func (c *Client) PreviewSession(ctx context.Context, token string, resolve LinkResolver, defaultURL string) (string, error) {
	if err := c.checkPreviewToken(token); err != nil {
		return "", err
	}

	var session previewSession
	if err := c.getJSON(ctx, token, &session); err != nil {
		return "", fmt.Errorf("fetching preview session: %w", err)
	}
	if session.MainDocument == "" {
		return defaultURL, nil
	}

	doc, err := c.GetByID(ctx, session.MainDocument, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultURL, nil
		}
		return "", fmt.Errorf("fetching previewed document: %w", err)
	}
	if resolve == nil {
		resolve = DefaultLinkResolver
	}
	return resolve(*doc), nil
}

// checkPreviewToken refuses tokens that do not point back at this repository,
// so a crafted link cannot make the server fetch arbitrary URLs.
func (c *Client) checkPreviewToken(token string) error {
	u, err := url.Parse(token)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid preview token")
	}
	if u.Scheme != c.endpoint.Scheme && u.Scheme != "https" {
		return fmt.Errorf("invalid preview token scheme %q", u.Scheme)
	}
	if !sameRepository(c.endpoint.Hostname(), u.Hostname()) {
		return fmt.Errorf("preview token host %q does not belong to %q", u.Hostname(), c.endpoint.Hostname())
	}
	return nil
}

// sameRepository matches "repo.cdn.prismic.io" with "repo.prismic.io".
func sameRepository(endpointHost, tokenHost string) bool {
	if strings.EqualFold(endpointHost, tokenHost) {
		return true
	}
	if net.ParseIP(endpointHost) != nil || net.ParseIP(tokenHost) != nil {
		return false
	}
	ep := strings.Split(strings.ToLower(endpointHost), ".")
	tk := strings.Split(strings.ToLower(tokenHost), ".")
	if len(ep) < 3 || len(tk) < 3 {
		return false
	}
	return ep[0] == tk[0] &&
		ep[len(ep)-2] == tk[len(tk)-2] &&
		ep[len(ep)-1] == tk[len(tk)-1]
}
