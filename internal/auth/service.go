// Package auth は外部IdPとローカル認証のストラテジー、および本人情報の照合を提供する。
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/silverlens/internal/model"
)

// Service は認証に関するビジネスロジックを提供する。
// 有効なストラテジーのみを保持し、すべてのログインをReconcilerに通す。
type Service struct {
	providers  map[string]OAuthProvider
	local      *LocalStrategy
	reconciler *Reconciler
}

// NewService はServiceを生成する。localがnilの場合、ローカル認証は無効になる。
func NewService(
	reconciler *Reconciler,
	local *LocalStrategy,
	providers ...OAuthProvider,
) *Service {
	m := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		m[strings.ToLower(p.Name())] = p
	}
	return &Service{
		providers:  m,
		local:      local,
		reconciler: reconciler,
	}
}

// Provider はルート名（"google", "microsoft"）に対応する有効なプロバイダーを返す。
func (s *Service) Provider(key string) (OAuthProvider, bool) {
	p, ok := s.providers[strings.ToLower(key)]
	return p, ok
}

// ProviderKeys は有効なプロバイダーのルート名を昇順で返す。
func (s *Service) ProviderKeys() []string {
	keys := make([]string, 0, len(s.providers))
	for k := range s.providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LocalEnabled はローカル認証が有効かどうかを返す。
func (s *Service) LocalEnabled() bool {
	return s.local != nil
}

// GetLoginURL は指定プロバイダーの同意画面URLを生成する。
func (s *Service) GetLoginURL(key, state string) (string, error) {
	p, ok := s.Provider(key)
	if !ok {
		return "", model.ErrProviderDisabled
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、照合済みのセッションを返す。
func (s *Service) HandleCallback(ctx context.Context, key, code string, client model.ClientInfo) (*ReconcileResult, error) {
	p, ok := s.Provider(key)
	if !ok {
		return nil, model.ErrProviderDisabled
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. 本人情報を照合してセッションを記録
	return s.reconciler.Reconcile(ctx, model.Identity{
		Email:     info.Email,
		FirstName: info.FirstName,
		LastName:  info.LastName,
	}, p.Name(), client)
}

// LoginLocal はメールアドレスとパスワードで認証し、照合済みのセッションを返す。
func (s *Service) LoginLocal(ctx context.Context, email, password string, client model.ClientInfo) (*ReconcileResult, error) {
	if s.local == nil {
		return nil, model.ErrProviderDisabled
	}

	identity, err := s.local.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, identity, s.local.Name(), client)
}

// SignUpLocal はローカルアカウントを作成し、そのままログインさせる。
func (s *Service) SignUpLocal(ctx context.Context, in SignUpInput, client model.ClientInfo) (*ReconcileResult, error) {
	if s.local == nil {
		return nil, model.ErrProviderDisabled
	}

	identity, err := s.local.SignUp(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, identity, s.local.Name(), client)
}
