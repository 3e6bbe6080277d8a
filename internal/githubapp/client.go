package githubapp

import (
	"fmt"
	"strings"
)

// App describes a registered GitHub App's static identity. Token minting
// is handled by CredentialBroker, which wraps App with the ghinstallation
// transport and a cache.
type App struct {
	AppID         int64
	Slug          string
	Secret        string
	PrivateKeyPEM []byte
	BaseURL       string
}

func New(appID int64, slug, webhookSecret, privateKeyPEM, baseURL string) (*App, error) {
	keyBytes := []byte(privateKeyPEM)
	if len(bytesTrimSpace(keyBytes)) == 0 {
		return nil, fmt.Errorf("empty private key PEM")
	}
	return &App{
		AppID:         appID,
		Slug:          slug,
		Secret:        webhookSecret,
		PrivateKeyPEM: keyBytes,
		BaseURL:       strings.TrimRight(baseURL, "/"),
	}, nil
}

func (a *App) InstallURL() string {
	// GitHub App installation URL format:
	// https://github.com/apps/<slug>/installations/new
	return fmt.Sprintf("https://github.com/apps/%s/installations/new", a.Slug)
}

func bytesTrimSpace(b []byte) []byte {
	i := 0
	j := len(b)
	for i < j && (b[i] == ' ' || b[i] == '\n' || b[i] == '\r' || b[i] == '\t') {
		i++
	}
	for j > i && (b[j-1] == ' ' || b[j-1] == '\n' || b[j-1] == '\r' || b[j-1] == '\t') {
		j--
	}
	return b[i:j]
}
