package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/silverlens/internal/model"
)

const (
	defaultMicrosoftTenant     = "common"
	defaultMicrosoftScope      = "user.read"
	defaultMicrosoftProfileURL = "https://graph.microsoft.com/v1.0/me"
	microsoftLoginBaseURL      = "https://login.microsoftonline.com/"
)

// MicrosoftOAuthConfig はMicrosoft identity platformの設定。
type MicrosoftOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Tenant       string // 省略時は "common"

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	ProfileURL string
}

// MicrosoftOAuthProvider はMicrosoftアカウント（Entra ID）による認証を提供する。
type MicrosoftOAuthProvider struct {
	config MicrosoftOAuthConfig
	client *resty.Client
}

// NewMicrosoftOAuthProvider はMicrosoftOAuthProviderを生成する。
func NewMicrosoftOAuthProvider(config MicrosoftOAuthConfig) *MicrosoftOAuthProvider {
	if config.Tenant == "" {
		config.Tenant = defaultMicrosoftTenant
	}
	base := microsoftLoginBaseURL + url.PathEscape(config.Tenant) + "/oauth2/v2.0"
	if config.AuthURL == "" {
		config.AuthURL = base + "/authorize"
	}
	if config.TokenURL == "" {
		config.TokenURL = base + "/token"
	}
	if config.ProfileURL == "" {
		config.ProfileURL = defaultMicrosoftProfileURL
	}
	return &MicrosoftOAuthProvider{config: config, client: newOAuthClient()}
}

// Name はプロバイダー名を返す。
func (p *MicrosoftOAuthProvider) Name() string {
	return model.ProviderMicrosoft
}

// GetLoginURL はMicrosoftの認可URLを生成する。
func (p *MicrosoftOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"response_mode": {"query"},
		"scope":         {defaultMicrosoftScope},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// graphProfile はMicrosoft Graph /me のレスポンス。
type graphProfile struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、Graphからプロフィールを取得する。
// mailが空の場合はuserPrincipalNameをメールアドレスとして使用する。
func (p *MicrosoftOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	accessToken, err := exchangeToken(ctx, p.client, p.config.TokenURL, map[string]string{
		"code":          code,
		"client_id":     p.config.ClientID,
		"client_secret": p.config.ClientSecret,
		"redirect_uri":  p.config.RedirectURL,
		"grant_type":    "authorization_code",
		"scope":         defaultMicrosoftScope,
	})
	if err != nil {
		return nil, fmt.Errorf("microsoft: %w", err)
	}

	var profile graphProfile
	if err := fetchProfile(ctx, p.client, p.config.ProfileURL, accessToken, &profile); err != nil {
		return nil, fmt.Errorf("microsoft: %w", err)
	}

	email := strings.TrimSpace(profile.Mail)
	if email == "" {
		email = strings.TrimSpace(profile.UserPrincipalName)
	}
	if email == "" {
		return nil, fmt.Errorf("microsoft: %w", model.ErrMissingEmail)
	}

	return &OAuthUserInfo{
		Email:     email,
		FirstName: profile.GivenName,
		LastName:  profile.Surname,
		Provider:  model.ProviderMicrosoft,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*MicrosoftOAuthProvider)(nil)
