package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	mu        sync.Mutex
	execCalls int
	query     string
	args      []interface{}
	result    sql.Result
	err       error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execCalls++
	m.query = query
	m.args = args
	return m.result, m.err
}

func (m *mockExecutor) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execCalls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログの各行からkeyを探し、最初に見つかった値を返す。
func findLogField(buf *bytes.Buffer, key string) (interface{}, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewSessionSweepJob_DefaultMaxAge(t *testing.T) {
	var buf bytes.Buffer
	job := NewSessionSweepJob(&mockExecutor{}, newTestLogger(&buf), 0)

	if job.MaxAge != 24*time.Hour {
		t.Errorf("MaxAge = %v, want 24h", job.MaxAge)
	}
}

func TestSessionSweepJob_Run_ClosesOnlyOpenSessions(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	job := NewSessionSweepJob(mock, newTestLogger(&buf), time.Hour)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if mock.calls() != 1 {
		t.Fatal("ExecContext が呼び出されなかった")
	}

	// 未ログアウトの行だけを対象にすること
	if !strings.Contains(mock.query, "UPDATE sessions") {
		t.Errorf("クエリに 'UPDATE sessions' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "logout_time IS NULL") {
		t.Errorf("クエリに 'logout_time IS NULL' 条件が含まれていない: %s", mock.query)
	}
}

func TestSessionSweepJob_Run_UsesIntervalParameter(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewSessionSweepJob(mock, newTestLogger(&buf), 90*time.Minute)

	_ = job.Run(context.Background())

	if len(mock.args) != 1 {
		t.Fatalf("引数の数 = %d, want 1", len(mock.args))
	}
	argStr, ok := mock.args[0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[0])
	}
	if argStr != "5400 seconds" {
		t.Errorf("interval引数 = %q, want %q", argStr, "5400 seconds")
	}
}

func TestSessionSweepJob_Run_LogsClosedCount(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 42}}
	job := NewSessionSweepJob(mock, newTestLogger(&buf), time.Hour)

	_ = job.Run(context.Background())

	count, ok := findLogField(&buf, "closed_count")
	if !ok || count != float64(42) {
		t.Errorf("ログに closed_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestSessionSweepJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	job := NewSessionSweepJob(mock, newTestLogger(&buf), time.Hour)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestSessionSweepJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewSessionSweepJob(mock, newTestLogger(&buf), time.Hour)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
}

func TestSessionSweepJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewSessionSweepJob(mock, newTestLogger(&buf), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mock.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if mock.calls() == 0 {
		t.Fatal("起動直後に Run が実行されなかった")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後に Start が終了しなかった")
	}
}
