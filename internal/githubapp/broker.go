package githubapp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/go-github/v66/github"
	"golang.org/x/sync/singleflight"

	"codeguardpro/internal/forgeerr"
)

// minTokenTTL is the minimum remaining lifetime wanted of a minted token.
// The broker does not check it itself: a cached *Transport is reused as is,
// and ghinstallation refreshes its token once the remaining TTL drops below
// its own internal margin.
const minTokenTTL = 5 * time.Minute

// CredentialBroker mints short-lived GitHub App installation tokens and
// caches the underlying transport by installation id. A miss or
// near-expiry triggers a single-flight refresh under a per-installation
// lock, so concurrent callers for the same installation share one mint.
type CredentialBroker struct {
	app         *App
	cache       *lru.Cache[int64, *ghinstallation.Transport]
	group       singleflight.Group
	fallbackTok string
}

// NewCredentialBroker constructs a broker. fallbackToken is used verbatim
// as a bearer token when the App has no signing key configured; it is the
// GITHUB_TOKEN environment fallback from spec.md §6.1.
func NewCredentialBroker(app *App, fallbackToken string) (*CredentialBroker, error) {
	if app == nil && fallbackToken == "" {
		return nil, forgeerr.New(forgeerr.AuthUnconfigured, "no GitHub App credentials and no GITHUB_TOKEN fallback")
	}
	cache, err := lru.New[int64, *ghinstallation.Transport](256)
	if err != nil {
		return nil, err
	}
	return &CredentialBroker{app: app, cache: cache, fallbackTok: fallbackToken}, nil
}

// Token returns a bearer token scoped to installationID, minted through the
// cached ghinstallation transport for that id. When no App is configured the
// fallback personal token is returned whatever installationID is.
func (b *CredentialBroker) Token(ctx context.Context, installationID int64) (string, error) {
	if b.app == nil {
		if b.fallbackTok == "" {
			return "", forgeerr.New(forgeerr.AuthUnconfigured, "no credentials configured")
		}
		return b.fallbackTok, nil
	}

	tr, err, _ := b.group.Do(fmt.Sprintf("%d", installationID), func() (any, error) {
		if cached, ok := b.cache.Get(installationID); ok {
			return cached, nil
		}
		tr, err := ghinstallation.New(http.DefaultTransport, b.app.AppID, installationID, b.app.PrivateKeyPEM)
		if err != nil {
			return nil, forgeerr.Wrap(forgeerr.Upstream, "minting installation transport", err)
		}
		b.cache.Add(installationID, tr)
		return tr, nil
	})
	if err != nil {
		return "", err
	}
	transport := tr.(*ghinstallation.Transport)
	tok, err := transport.Token(ctx)
	if err != nil {
		return "", forgeerr.Wrap(forgeerr.Upstream, "minting installation token", err)
	}
	return tok, nil
}

// Client returns a *github.Client authenticated for installationID,
// attaching a fresh installation token per spec.md §4.2 ("every call MUST
// attach an installation token from the broker").
func (b *CredentialBroker) Client(ctx context.Context, installationID int64) (*github.Client, error) {
	if b.app == nil {
		if b.fallbackTok == "" {
			return nil, forgeerr.New(forgeerr.AuthUnconfigured, "no credentials configured")
		}
		return github.NewClient(nil).WithAuthToken(b.fallbackTok), nil
	}
	_, err, _ := b.group.Do(fmt.Sprintf("client-%d", installationID), func() (any, error) {
		if _, ok := b.cache.Get(installationID); ok {
			return nil, nil
		}
		tr, err := ghinstallation.New(http.DefaultTransport, b.app.AppID, installationID, b.app.PrivateKeyPEM)
		if err != nil {
			return nil, forgeerr.Wrap(forgeerr.Upstream, "minting installation transport", err)
		}
		b.cache.Add(installationID, tr)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	tr, _ := b.cache.Get(installationID)
	return github.NewClient(&http.Client{Transport: tr}), nil
}

// AppClient returns a *github.Client authenticated as the app itself (JWT,
// not an installation token), used to resolve which installation owns a
// given repository when the caller only has owner/name (e.g. the /heal
// endpoint, which is handed a repo URL rather than a webhook payload).
func (b *CredentialBroker) AppClient() (*github.Client, error) {
	if b.app == nil {
		return nil, forgeerr.New(forgeerr.AuthUnconfigured, "no GitHub App credentials configured")
	}
	tr, err := ghinstallation.NewAppsTransport(http.DefaultTransport, b.app.AppID, b.app.PrivateKeyPEM)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.Upstream, "minting app transport", err)
	}
	return github.NewClient(&http.Client{Transport: tr}), nil
}
