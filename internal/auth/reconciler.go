package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/model"
	"github.com/hitoshi/silverlens/internal/repository"
	"github.com/hitoshi/silverlens/internal/security"
)

// Reconciler は認証済みの本人情報を永続ユーザーに対応付け、ログインセッションを記録する。
// ユーザーとプロバイダーはfind-or-createで解決し、同時実行時の一意制約違反は再読込で吸収する。
type Reconciler struct {
	users     repository.UserRepository
	providers repository.ProviderRepository
	sessions  repository.SessionRepository
	cache     *ProviderCache
	sanitizer security.NameSanitizer
	now       func() time.Time
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(
	users repository.UserRepository,
	providers repository.ProviderRepository,
	sessions repository.SessionRepository,
	cache *ProviderCache,
) *Reconciler {
	if cache == nil {
		cache = NewProviderCache()
	}
	return &Reconciler{
		users:     users,
		providers: providers,
		sessions:  sessions,
		cache:     cache,
		sanitizer: security.NewNameSanitizer(),
		now:       time.Now,
	}
}

// ReconcileResult は照合結果を表す。
type ReconcileResult struct {
	User    *model.User
	Session *model.Session
}

// Reconcile はユーザーとプロバイダーを解決し、新しいセッションレコードを挿入する。
// セッションの挿入は最後の手順で、途中で失敗した場合はセッション行を残さない。
func (r *Reconciler) Reconcile(ctx context.Context, identity model.Identity, providerName string, client model.ClientInfo) (*ReconcileResult, error) {
	// 1. メールアドレスは照合キーのため必須
	identity.Email = strings.TrimSpace(identity.Email)
	if identity.Email == "" {
		return nil, model.ErrIdentity
	}

	// 2. ユーザーを検索、なければ作成
	user, err := r.findOrCreateUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	// 3. プロバイダーIDを解決
	providerID, err := r.resolveProvider(ctx, providerName)
	if err != nil {
		return nil, err
	}

	// 4. セッションレコードを挿入
	session := &model.Session{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		ProviderID: providerID,
		LoginTime:  r.now(),
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	slog.Info("login session recorded",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
		slog.String("provider", providerName),
	)

	return &ReconcileResult{User: user, Session: session}, nil
}

// findOrCreateUser はメールアドレスでユーザーを検索し、存在しなければ作成する。
// IdPから受け取った表示名は作成前にサニタイズする。
// 作成時に一意制約違反となった場合は、同時に作成された行を再読込して使用する。
func (r *Reconciler) findOrCreateUser(ctx context.Context, identity model.Identity) (*model.User, error) {
	user, err := r.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user = &model.User{
		ID:        uuid.New().String(),
		Email:     identity.Email,
		FirstName: r.sanitizer.Sanitize(identity.FirstName),
		LastName:  r.sanitizer.Sanitize(identity.LastName),
		CreatedAt: r.now(),
	}
	err = r.users.Create(ctx, user)
	if err == nil {
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email),
		)
		return user, nil
	}
	if !database.IsUniqueViolation(err) {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	existing, err := r.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("reconcile: user vanished after unique violation: %w", model.ErrQuery)
	}
	return existing, nil
}

// resolveProvider はキャッシュ、ストアの順にプロバイダーを検索し、なければ作成する。
func (r *Reconciler) resolveProvider(ctx context.Context, name string) (string, error) {
	if id, ok := r.cache.Get(name); ok {
		return id, nil
	}

	provider, err := r.providers.FindByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("reconcile: %w", err)
	}
	if provider != nil {
		return r.cache.Set(name, provider.ID), nil
	}

	provider = &model.OAuthProvider{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: r.now(),
	}
	err = r.providers.Create(ctx, provider)
	if err == nil {
		return r.cache.Set(name, provider.ID), nil
	}
	if !database.IsUniqueViolation(err) {
		return "", fmt.Errorf("reconcile: %w", err)
	}

	existing, err := r.providers.FindByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("reconcile: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("reconcile: provider vanished after unique violation: %w", model.ErrQuery)
	}
	return r.cache.Set(name, existing.ID), nil
}
