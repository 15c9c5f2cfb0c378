// package webfinger resolves nickname@domain handles to actor URLs via the
// .well-known/webfinger endpoint.
package webfinger

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/carlmjohnson/requests"
	"golang.org/x/net/idna"
)

// Webfinger is a JRD document returned by a webfinger endpoint.
type Webfinger struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases"`
	Links   []Link   `json:"links"`
}

// ActivityPub returns the href of the self/activity+json link.
func (wf *Webfinger) ActivityPub() (string, error) {
	for _, link := range wf.Links {
		if link.Type == "application/activity+json" && (link.Rel == "self" || link.Rel == "") {
			return link.Href, nil
		}
	}
	return "", ErrActorNotFound
}

type Link struct {
	Rel      string `json:"rel"`
	Type     string `json:"type"`
	Href     string `json:"href"`
	Template string `json:"template"`
}

// Acct is a parsed nickname@domain handle.
type Acct struct {
	User string
	Host string
}

func (a *Acct) String() string {
	return "acct:" + a.User + "@" + a.Host
}

// Webfinger returns the URL of the webfinger resource for this Acct.
func (a *Acct) Webfinger() string {
	return "https://" + a.Host + "/.well-known/webfinger?resource=" + url.QueryEscape(a.String())
}

// Fetch retrieves the JRD document for this Acct.
func (a *Acct) Fetch(ctx context.Context) (*Webfinger, error) {
	var webfinger Webfinger
	err := requests.URL(a.Webfinger()).
		Accept("application/jrd+json").
		ToJSON(&webfinger).
		Fetch(ctx)
	return &webfinger, err
}

// Normalise canonicalises the host: lower case, punycode, port stripped.
func (a *Acct) Normalise() error {
	host := strings.ToLower(a.Host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, err)
	}
	a.Host = host
	return nil
}

// Parse parses a handle in any of the forms people paste into a follow box:
// nick@domain, @nick@domain, acct:nick@domain, https://domain/@nick and
// https://domain/users/nick.
func Parse(query string) (*Acct, error) {
	query = strings.TrimSpace(query)

	// In case the handle has been URL encoded
	query, err := url.QueryUnescape(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, err)
	}

	if strings.HasPrefix(query, "https://") || strings.HasPrefix(query, "http://") {
		return parseURLForm(query)
	}

	query = strings.TrimPrefix(query, "acct:")
	query = strings.TrimPrefix(query, "@")

	parts := strings.Split(query, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, query)
	}
	acct := &Acct{User: parts[0], Host: parts[1]}
	if err := acct.Normalise(); err != nil {
		return nil, err
	}
	return acct, nil
}

func parseURLForm(query string) (*Acct, error) {
	u, err := url.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, err)
	}
	path := strings.Trim(u.Path, "/")
	var user string
	switch {
	case strings.HasPrefix(path, "@"):
		user = strings.TrimPrefix(path, "@")
	case strings.HasPrefix(path, "users/"):
		user = strings.TrimPrefix(path, "users/")
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, query)
	}
	if user == "" || strings.Contains(user, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, query)
	}
	acct := &Acct{User: user, Host: u.Host}
	if err := acct.Normalise(); err != nil {
		return nil, err
	}
	return acct, nil
}
