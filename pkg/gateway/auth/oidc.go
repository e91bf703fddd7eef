package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/synaptica-ai/chartreview/pkg/common/httpclient"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"golang.org/x/oauth2"
)

// OIDCAuthenticator validates opaque or JWT access tokens by presenting them
// to the issuer's userinfo endpoint.
type OIDCAuthenticator struct {
	config      *oauth2.Config
	issuer      string
	userInfoURL string
	httpClient  *http.Client
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret string, timeout time.Duration) (*OIDCAuthenticator, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}
	issuer = strings.TrimRight(issuer, "/")

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  issuer + "/authorize",
			TokenURL: issuer + "/token",
		},
		Scopes: []string{"openid", "profile", "email"},
	}

	return &OIDCAuthenticator{
		config:      config,
		issuer:      issuer,
		userInfoURL: issuer + "/userinfo",
		httpClient:  httpclient.New(timeout),
	}, nil
}

type userInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

func (a *OIDCAuthenticator) ValidateToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("token is empty: %w", ErrInvalidToken)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	client := a.config.Client(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})

	var info userInfo
	err := httpclient.Retry(ctx, 3, 100*time.Millisecond, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", httpclient.ErrPermanent, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if httpclient.IsRetriable(err) {
				return err
			}
			return fmt.Errorf("%w: %v", httpclient.ErrPermanent, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("userinfo rejected token: %w: %w", ErrInvalidToken, httpclient.ErrPermanent)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("userinfo returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("userinfo returned %d: %w", resp.StatusCode, httpclient.ErrPermanent)
		}

		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return fmt.Errorf("decode userinfo: %v: %w", err, httpclient.ErrPermanent)
		}
		return nil
	})
	if err != nil {
		logger.Log.WithError(err).WithField("issuer", a.issuer).Debug("token validation failed")
		return Identity{}, err
	}
	if info.Subject == "" {
		return Identity{}, fmt.Errorf("userinfo without subject: %w", ErrInvalidToken)
	}

	return Identity{Subject: info.Subject, Email: info.Email, Name: info.Name, Role: info.Role}, nil
}
