package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/silverlens/internal/model"
)

func TestMicrosoftOAuthProvider_DefaultEndpointsUseTenant(t *testing.T) {
	p := NewMicrosoftOAuthProvider(MicrosoftOAuthConfig{ClientID: "cid"})
	url := p.GetLoginURL("st")

	if !strings.HasPrefix(url, "https://login.microsoftonline.com/common/oauth2/v2.0/authorize?") {
		t.Errorf("unexpected authorize URL: %q", url)
	}
	for _, want := range []string{"client_id=cid", "scope=user.read", "state=st", "response_type=code"} {
		if !strings.Contains(url, want) {
			t.Errorf("URL should contain %q, got %q", want, url)
		}
	}

	tenant := NewMicrosoftOAuthProvider(MicrosoftOAuthConfig{Tenant: "contoso.onmicrosoft.com"})
	if !strings.Contains(tenant.GetLoginURL("x"), "/contoso.onmicrosoft.com/oauth2/v2.0/authorize") {
		t.Errorf("tenant should be used in authorize URL, got %q", tenant.GetLoginURL("x"))
	}
}

func TestMicrosoftOAuthProvider_ExchangeCode_UsesMail(t *testing.T) {
	tokenServer := newTokenServer(t, "ms-code")
	profileServer := newProfileServer(t, map[string]interface{}{
		"id":                "ms-1",
		"mail":              "ann@contoso.com",
		"userPrincipalName": "ann_contoso.com#EXT#@tenant.onmicrosoft.com",
		"givenName":         "Ann",
		"surname":           "Lee",
	})

	p := NewMicrosoftOAuthProvider(MicrosoftOAuthConfig{
		TokenURL:   tokenServer.URL,
		ProfileURL: profileServer.URL,
	})

	info, err := p.ExchangeCode(context.Background(), "ms-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if info.Email != "ann@contoso.com" {
		t.Errorf("email = %q, want mail attribute", info.Email)
	}
	if info.FirstName != "Ann" || info.LastName != "Lee" {
		t.Errorf("name = %q %q", info.FirstName, info.LastName)
	}
	if info.Provider != model.ProviderMicrosoft {
		t.Errorf("provider = %q", info.Provider)
	}
}

func TestMicrosoftOAuthProvider_ExchangeCode_FallsBackToUPN(t *testing.T) {
	tokenServer := newTokenServer(t, "ms-code")
	profileServer := newProfileServer(t, map[string]interface{}{
		"mail":              nil,
		"userPrincipalName": "bob@contoso.com",
	})

	p := NewMicrosoftOAuthProvider(MicrosoftOAuthConfig{
		TokenURL:   tokenServer.URL,
		ProfileURL: profileServer.URL,
	})

	info, err := p.ExchangeCode(context.Background(), "ms-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if info.Email != "bob@contoso.com" {
		t.Errorf("email = %q, want userPrincipalName fallback", info.Email)
	}
}

func TestMicrosoftOAuthProvider_ExchangeCode_MissingEmail(t *testing.T) {
	tokenServer := newTokenServer(t, "ms-code")
	profileServer := newProfileServer(t, map[string]interface{}{"id": "ms-2"})

	p := NewMicrosoftOAuthProvider(MicrosoftOAuthConfig{
		TokenURL:   tokenServer.URL,
		ProfileURL: profileServer.URL,
	})

	_, err := p.ExchangeCode(context.Background(), "ms-code")
	if !errors.Is(err, model.ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}
