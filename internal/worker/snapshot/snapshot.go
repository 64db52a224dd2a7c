// Package snapshot は施設一覧のJSONスナップショットの出力と参照を提供する。
// 起動時と定期実行で全施設をファイルに書き出し、総件数APIはこのファイルを読む。
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hitoshi/silverlens/internal/metrics"
	"github.com/hitoshi/silverlens/internal/model"
)

// CommunityLister は全施設の取得に必要なインターフェース。
// repository.CommunityRepositoryの部分集合として定義する。
type CommunityLister interface {
	ListAll(ctx context.Context) ([]model.Community, error)
}

// Exporter は全施設をJSONファイルに書き出すジョブ。
type Exporter struct {
	communities CommunityLister
	path        string
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
}

// NewExporter はExporterを生成する。mcがnilの場合はメトリクスを記録しない。
func NewExporter(communities CommunityLister, path string, logger *slog.Logger, mc metrics.MetricsCollector) *Exporter {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Exporter{
		communities: communities,
		path:        path,
		logger:      logger,
		metrics:     mc,
	}
}

// Path はスナップショットの出力先を返す。
func (e *Exporter) Path() string {
	return e.path
}

// Start は起動直後に1回出力し、以降interval間隔で出力を繰り返す。intervalが0以下の場合は起動時の1回のみ。
// 失敗した場合は指数バックオフで再試行する（ただしintervalより長くは待たない）。
// コンテキストがキャンセルされるまで実行を継続する。
func (e *Exporter) Start(ctx context.Context, interval time.Duration) {
	e.logger.Info("スナップショット出力ジョブを開始しました",
		slog.String("path", e.path),
		slog.Duration("interval", interval),
	)

	failures := e.runAndLog(ctx, 0)
	if interval <= 0 {
		// 定期出力は無効。起動時の1回のみ
		return
	}

	timer := time.NewTimer(nextDelay(interval, failures))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("スナップショット出力ジョブを停止しました")
			return
		case <-timer.C:
			failures = e.runAndLog(ctx, failures)
			timer.Reset(nextDelay(interval, failures))
		}
	}
}

// runAndLog は1回出力し、更新後の連続失敗回数を返す。
func (e *Exporter) runAndLog(ctx context.Context, failures int) int {
	if _, err := e.Run(ctx); err != nil {
		failures++
		e.logger.Error("スナップショットの出力に失敗しました",
			slog.String("path", e.path),
			slog.Int("consecutive_failures", failures),
			slog.String("error", err.Error()),
		)
		return failures
	}
	return 0
}

// Run は全施設を取得してスナップショットファイルを置き換え、書き出した件数を返す。
// 一時ファイルに書き込んでからリネームするため、読み手が書きかけのファイルを見ることはない。
func (e *Exporter) Run(ctx context.Context) (int, error) {
	start := time.Now()

	// 1. 全施設を取得
	communities, err := e.communities.ListAll(ctx)
	if err != nil {
		e.metrics.RecordSnapshotExport(false, 0)
		return 0, fmt.Errorf("failed to list communities: %w", err)
	}

	// 2. 一時ファイル経由でアトミックに置き換え
	if err := writeAtomic(e.path, communities); err != nil {
		e.metrics.RecordSnapshotExport(false, 0)
		return 0, err
	}

	e.metrics.RecordSnapshotExport(true, len(communities))
	e.logger.Info("スナップショットを出力しました",
		slog.String("path", e.path),
		slog.Int("community_count", len(communities)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return len(communities), nil
}

func writeAtomic(path string, communities []model.Community) error {
	if communities == nil {
		communities = []model.Community{}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // リネーム成功後は存在しないため無視される

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(communities); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Reader はスナップショットファイルの件数を返す。
// ファイルの更新時刻とサイズが変わらない間は前回の件数を再利用する。
type Reader struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	count   int
	loaded  bool
}

// NewReader はReaderを生成する。
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Count はスナップショットに含まれる施設数を返す。
// ファイルが存在しない、またはJSON配列として読めない場合はエラーを返す。
func (r *Reader) Count() (int, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && info.ModTime().Equal(r.modTime) && info.Size() == r.size {
		return r.count, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	r.modTime = info.ModTime()
	r.size = info.Size()
	r.count = len(items)
	r.loaded = true
	return r.count, nil
}
