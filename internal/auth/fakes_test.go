package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"github.com/hitoshi/silverlens/internal/database"
	"github.com/hitoshi/silverlens/internal/model"
	"github.com/hitoshi/silverlens/internal/repository"
)

// memStore は一意制約を再現するインメモリのストア。
// users.emailとlower(provider_name)の重複挿入は23505を返す。
type memStore struct {
	mu        sync.Mutex
	users     map[string]*model.User
	providers map[string]*model.OAuthProvider
	sessions  map[string]*model.Session

	providerLookups int
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*model.User),
		providers: make(map[string]*model.OAuthProvider),
		sessions:  make(map[string]*model.Session),
	}
}

func uniqueViolation(op string) error {
	return database.Classify(op, &pq.Error{Code: pgerrcode.UniqueViolation})
}

type memUsers struct{ s *memStore }

func (m memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m memUsers) Create(_ context.Context, user *model.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[user.Email]; ok {
		return uniqueViolation("create user")
	}
	cp := *user
	m.s.users[user.Email] = &cp
	return nil
}

type memProviders struct{ s *memStore }

func (m memProviders) FindByName(_ context.Context, name string) (*model.OAuthProvider, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.providerLookups++
	if p, ok := m.s.providers[strings.ToLower(name)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m memProviders) Create(_ context.Context, p *model.OAuthProvider) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := strings.ToLower(p.Name)
	if _, ok := m.s.providers[key]; ok {
		return uniqueViolation("create provider")
	}
	cp := *p
	m.s.providers[key] = &cp
	return nil
}

type memSessions struct{ s *memStore }

func (m memSessions) Create(_ context.Context, session *model.Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.sessions[session.ID]; ok {
		return uniqueViolation("create session")
	}
	cp := *session
	m.s.sessions[session.ID] = &cp
	return nil
}

func (m memSessions) FindLatestByUserID(_ context.Context, userID string) (*model.Session, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var list []*model.Session
	for _, s := range m.s.sessions {
		if s.UserID == userID {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LoginTime.After(list[j].LoginTime) })
	cp := *list[0]
	return &cp, nil
}

func (m memSessions) Close(_ context.Context, id string, at time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	s, ok := m.s.sessions[id]
	if !ok || s.LogoutTime != nil {
		return false, nil
	}
	s.LogoutTime = &at
	return true, nil
}

// newMemReconciler はmemStoreを使うReconcilerを生成する。
func newMemReconciler(s *memStore) *Reconciler {
	return NewReconciler(memUsers{s}, memProviders{s}, memSessions{s}, NewProviderCache())
}

// --- 関数フィールド型モック ---

type mockUserRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

type mockOAuthProvider struct {
	name           string
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) Name() string { return m.name }

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

type mockNotifier struct {
	sendWelcomeFn func(ctx context.Context, email, firstName string) error
	calls         int
}

func (m *mockNotifier) SendWelcome(ctx context.Context, email, firstName string) error {
	m.calls++
	if m.sendWelcomeFn != nil {
		return m.sendWelcomeFn(ctx, email, firstName)
	}
	return nil
}

// --- compile-time interface checks ---
var (
	_ repository.UserRepository     = memUsers{}
	_ repository.ProviderRepository = memProviders{}
	_ repository.SessionRepository  = memSessions{}
	_ repository.UserRepository     = (*mockUserRepo)(nil)
	_ OAuthProvider                 = (*mockOAuthProvider)(nil)
)
