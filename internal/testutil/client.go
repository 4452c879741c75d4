package testutil

import (
	"io"
	"log/slog"
	"time"

	"train-console/internal/apiclient"
	"train-console/internal/domain"
)

// StaticCredentials is a fixed credential source
type StaticCredentials struct {
	Token    string
	AdminKey string
}

func (c StaticCredentials) BearerToken() string { return c.Token }
func (c StaticCredentials) AdminAPIKey() string { return c.AdminKey }

// SessionCredentials exposes a session as a credential source
func SessionCredentials(session *domain.Session) StaticCredentials {
	return StaticCredentials{Token: session.Token, AdminKey: session.AdminAPIKey}
}

// NewClient builds an API client for baseURL with quiet logs and pacing
// loose enough not to slow tests down
func NewClient(baseURL string, creds apiclient.CredentialSource) *apiclient.Client {
	client := apiclient.New(apiclient.Options{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		RPS:     1000,
		Burst:   100,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if creds != nil {
		client.UseSession(creds, nil)
	}
	return client
}
