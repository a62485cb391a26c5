package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/relaydesk/relaydesk/internal/config"
)

const graphAPIVersion = "v20.0"

// Token is a provider access token with its expiry. A zero ExpiresAt means
// the provider did not report one.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// WhatsAppAccount identifies the business assets behind a connected number.
type WhatsAppAccount struct {
	BusinessAccountID string
	PhoneNumberID     string
}

// InstagramAccount identifies the page and professional account pair. The
// page access token is what the send API accepts.
type InstagramAccount struct {
	PageID          string
	InstagramID     string
	PageAccessToken string
}

// GraphAPI is the provider surface the manager needs; *Graph is the
// production implementation.
type GraphAPI interface {
	AuthCodeURL(state, redirectURI string, scopes []string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error)
	ExchangeLongLived(ctx context.Context, shortToken string) (Token, error)
	WhatsAppAccounts(ctx context.Context, accessToken string) (WhatsAppAccount, error)
	InstagramAccounts(ctx context.Context, accessToken string) (InstagramAccount, error)
	SubscribeWhatsApp(ctx context.Context, businessAccountID, accessToken string) error
	SubscribePage(ctx context.Context, pageID, pageAccessToken string) error
}

// Graph talks to the Meta Graph API for the OAuth lifecycle.
type Graph struct {
	appID     string
	appSecret string
	baseURL   string
	authURL   string
	http      *http.Client
}

// NewGraph creates a Graph API client from the Meta app config.
func NewGraph(cfg config.MetaConfig) *Graph {
	base := strings.TrimRight(cfg.GraphBaseURL, "/")
	return &Graph{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		baseURL:   base,
		authURL:   fmt.Sprintf("https://www.facebook.com/%s/dialog/oauth", graphAPIVersion),
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *Graph) oauthConfig(redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.appID,
		ClientSecret: g.appSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  g.authURL,
			TokenURL: fmt.Sprintf("%s/%s/oauth/access_token", g.baseURL, graphAPIVersion),
		},
	}
}

// AuthCodeURL builds the provider consent URL for one connect attempt.
func (g *Graph) AuthCodeURL(state, redirectURI string, scopes []string) string {
	return g.oauthConfig(redirectURI, scopes).AuthCodeURL(state)
}

// ExchangeCode redeems the authorization code for a short-lived user token.
func (g *Graph) ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error) {
	tok, err := g.oauthConfig(redirectURI, nil).Exchange(ctx, code)
	if err != nil {
		return Token{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

// ExchangeLongLived swaps a short-lived token for a ~60 day one. It also
// refreshes an existing long-lived token.
func (g *Graph) ExchangeLongLived(ctx context.Context, shortToken string) (Token, error) {
	query := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {g.appID},
		"client_secret":     {g.appSecret},
		"fb_exchange_token": {shortToken},
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := g.get(ctx, fmt.Sprintf("/%s/oauth/access_token", graphAPIVersion), query, &payload); err != nil {
		return Token{}, fmt.Errorf("long-lived token exchange: %w", err)
	}
	token := Token{AccessToken: payload.AccessToken}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}

// WhatsAppAccounts resolves the business account and its first phone number.
func (g *Graph) WhatsAppAccounts(ctx context.Context, accessToken string) (WhatsAppAccount, error) {
	var businesses struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	query := url.Values{"access_token": {accessToken}}
	if err := g.get(ctx, fmt.Sprintf("/%s/me/whatsapp_business_accounts", graphAPIVersion), query, &businesses); err != nil {
		return WhatsAppAccount{}, err
	}
	if len(businesses.Data) == 0 {
		return WhatsAppAccount{}, fmt.Errorf("no whatsapp business account on this user")
	}
	account := WhatsAppAccount{BusinessAccountID: businesses.Data[0].ID}

	var numbers struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := g.get(ctx, fmt.Sprintf("/%s/%s/phone_numbers", graphAPIVersion, account.BusinessAccountID), query, &numbers); err != nil {
		return WhatsAppAccount{}, err
	}
	if len(numbers.Data) == 0 {
		return WhatsAppAccount{}, fmt.Errorf("whatsapp business account %s has no phone numbers", account.BusinessAccountID)
	}
	account.PhoneNumberID = numbers.Data[0].ID
	return account, nil
}

// InstagramAccounts resolves the first page with a linked professional
// account.
func (g *Graph) InstagramAccounts(ctx context.Context, accessToken string) (InstagramAccount, error) {
	var pages struct {
		Data []struct {
			ID                       string `json:"id"`
			AccessToken              string `json:"access_token"`
			InstagramBusinessAccount *struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	query := url.Values{
		"access_token": {accessToken},
		"fields":       {"id,access_token,instagram_business_account"},
	}
	if err := g.get(ctx, fmt.Sprintf("/%s/me/accounts", graphAPIVersion), query, &pages); err != nil {
		return InstagramAccount{}, err
	}
	for _, page := range pages.Data {
		if page.InstagramBusinessAccount == nil {
			continue
		}
		return InstagramAccount{
			PageID:          page.ID,
			InstagramID:     page.InstagramBusinessAccount.ID,
			PageAccessToken: page.AccessToken,
		}, nil
	}
	return InstagramAccount{}, fmt.Errorf("no page with a linked instagram professional account")
}

// SubscribeWhatsApp subscribes the app to the business account's webhooks.
func (g *Graph) SubscribeWhatsApp(ctx context.Context, businessAccountID, accessToken string) error {
	return g.post(ctx, fmt.Sprintf("/%s/%s/subscribed_apps", graphAPIVersion, businessAccountID),
		url.Values{"access_token": {accessToken}})
}

// SubscribePage subscribes the app to the page's message webhooks.
func (g *Graph) SubscribePage(ctx context.Context, pageID, pageAccessToken string) error {
	return g.post(ctx, fmt.Sprintf("/%s/%s/subscribed_apps", graphAPIVersion, pageID),
		url.Values{
			"access_token":      {pageAccessToken},
			"subscribed_fields": {"messages"},
		})
}

func (g *Graph) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph api %s: status=%d body=%s", path, resp.StatusCode, string(detail))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (g *Graph) post(ctx context.Context, path string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph api %s: status=%d body=%s", path, resp.StatusCode, string(detail))
	}
	return nil
}
