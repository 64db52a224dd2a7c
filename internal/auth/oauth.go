package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OAuthUserInfo は外部IdPから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	Email     string
	FirstName string
	LastName  string
	Provider  string // model.ProviderGoogle 等
}

// OAuthProvider は外部IdPによる認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はoauth_providersに記録するプロバイダー名を返す。
	Name() string
	// GetLoginURL は同意画面へのリダイレクトURLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

const defaultOAuthTimeout = 10 * time.Second

func newOAuthClient() *resty.Client {
	return resty.New().SetTimeout(defaultOAuthTimeout)
}

// oauthTokenResponse はトークンエンドポイントの共通レスポンス。
type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// exchangeToken は認可コードをアクセストークンに交換する。
func exchangeToken(ctx context.Context, client *resty.Client, tokenURL string, form map[string]string) (string, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(form).
		Post(tokenURL)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}

	var tokenResp oauthTokenResponse
	if err := json.Unmarshal(resp.Body(), &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return tokenResp.AccessToken, nil
}

// fetchProfile はBearerトークンでプロフィールを取得しoutにデコードする。
func fetchProfile(ctx context.Context, client *resty.Client, profileURL, accessToken string, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Accept", "application/json").
		Get(profileURL)
	if err != nil {
		return fmt.Errorf("profile request failed: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("profile fetch failed: %w", err)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse profile response: %w", err)
	}
	return nil
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	body := strings.TrimSpace(resp.String())
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode(), body)
}
