package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/model"
	"github.com/hitoshi/silverlens/internal/notify"
	"github.com/hitoshi/silverlens/internal/repository"
	"github.com/hitoshi/silverlens/internal/security"
)

// SignUpInput はローカルアカウント作成の入力。
type SignUpInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LocalStrategy はメールアドレスとパスワードによる認証（SHS）を提供する。
type LocalStrategy struct {
	users     repository.UserRepository
	sanitizer security.NameSanitizer
	notifier  notify.Notifier
	cost      int
	dummyHash string
	now       func() time.Time
}

// NewLocalStrategy はLocalStrategyを生成する。
// ユーザー不在時のタイミング差をなくすため、比較用のダミーハッシュを事前に生成する。
func NewLocalStrategy(
	users repository.UserRepository,
	sanitizer security.NameSanitizer,
	notifier notify.Notifier,
	cost int,
) (*LocalStrategy, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	dummy, err := HashPassword(uuid.New().String(), cost)
	if err != nil {
		return nil, err
	}
	return &LocalStrategy{
		users:     users,
		sanitizer: sanitizer,
		notifier:  notifier,
		cost:      cost,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// Name はプロバイダー名を返す。
func (s *LocalStrategy) Name() string {
	return model.ProviderLocal
}

// Authenticate はメールアドレスとパスワードを検証し、本人情報を返す。
// ユーザー不在、パスワード未設定（外部IdPのみのユーザー）、不一致はすべて
// model.ErrInvalidCredentialsとして区別せずに返す。
func (s *LocalStrategy) Authenticate(ctx context.Context, email, password string) (model.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.Identity{}, model.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return model.Identity{}, fmt.Errorf("local auth: %w", err)
	}

	if user == nil || !user.HasPassword() {
		CheckPassword(s.dummyHash, password)
		return model.Identity{}, model.ErrInvalidCredentials
	}
	if !CheckPassword(user.Password, password) {
		return model.Identity{}, model.ErrInvalidCredentials
	}

	return model.Identity{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

// SignUp はローカルアカウントを作成し、本人情報を返す。
// 作成後のウェルカム通知の失敗はログに記録するのみで、エラーにはしない。
func (s *LocalStrategy) SignUp(ctx context.Context, in SignUpInput) (model.Identity, error) {
	// 1. 入力検証
	in.Email = strings.TrimSpace(in.Email)
	firstName := s.sanitizer.Sanitize(in.FirstName)
	lastName := s.sanitizer.Sanitize(in.LastName)
	if in.Email == "" || in.Password == "" || firstName == "" || lastName == "" {
		return model.Identity{}, model.ErrMissingFields
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return model.Identity{}, model.ErrInvalidEmail
	}
	if len(in.Password) > MaxPasswordBytes {
		return model.Identity{}, model.ErrPasswordTooLong
	}

	// 2. 既存ユーザーの確認
	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return model.Identity{}, fmt.Errorf("sign up: %w", err)
	}
	if existing != nil {
		return model.Identity{}, model.ErrUserExists
	}

	// 3. パスワードをハッシュ化してユーザーを作成
	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return model.Identity{}, fmt.Errorf("sign up: %w", err)
	}
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     in.Email,
		FirstName: firstName,
		LastName:  lastName,
		Password:  hash,
		CreatedAt: s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err) {
			return model.Identity{}, model.ErrUserExists
		}
		return model.Identity{}, fmt.Errorf("sign up: %w", err)
	}
	slog.Info("local user created", slog.String("user_id", user.ID), slog.String("email", user.Email))

	// 4. ウェルカム通知
	if err := s.notifier.SendWelcome(ctx, user.Email, user.FirstName); err != nil {
		slog.Warn("welcome notification failed",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
	}

	return model.Identity{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}
