package activitypub

import (
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/go-json-experiment/json"
	"github.com/sorrelsocial/sorrel/internal/httpsig"
)

// Signer represents an object that can sign HTTP requests.
type Signer interface {
	PublicKeyID() string
	PrivKey() (*rsa.PrivateKey, error)
}

// Client is an ActivityPub client which can be used to fetch and deliver
// ActivityPub resources.
type Client struct {
	keyID      string
	privateKey crypto.PrivateKey
}

// NewClient returns a client that signs its requests as signAs.
func NewClient(signAs Signer) (*Client, error) {
	privateKey, err := signAs.PrivKey()
	if err != nil {
		return nil, err
	}
	return &Client{
		keyID:      signAs.PublicKeyID(),
		privateKey: privateKey,
	}, nil
}

// Fetch fetches the ActivityPub resource at the given URL and decodes it into the given object.
func (c *Client) Fetch(ctx context.Context, uri string, obj interface{}) error {
	return requests.URL(uri).
		Accept(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := httpsig.Sign(req, c.keyID, c.privateKey, nil); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
			"application/octet-stream", // sigh
		).
		CheckStatus(http.StatusOK).
		ToJSON(obj).
		Fetch(ctx)
}

// Exists reports whether the resource at the given URL still resolves.
func (c *Client) Exists(ctx context.Context, uri string) bool {
	err := requests.URL(uri).
		Method(http.MethodHead).
		CheckStatus(http.StatusOK).
		Fetch(ctx)
	return err == nil
}

// Post delivers the given ActivityPub object to the given URL.
func (c *Client) Post(ctx context.Context, url string, obj map[string]any) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return requests.URL(url).
		BodyBytes(body).
		Header("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted).
		Fetch(ctx)
}
