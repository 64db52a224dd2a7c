package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"github.com/hitoshi/silverlens/internal/model"
)

// Classify はドライバーから返されたエラーをmodel.ErrConnectionまたはmodel.ErrQueryに分類し、
// 操作名を付けてラップする。元のエラーもerrors.Is/Asで辿れる。
// nilの場合はnilを返す。
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrConnection) || errors.Is(err, model.ErrQuery) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrConnection, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrQuery, err)
}

// IsConnectionError はストアへの到達不能やタイムアウトを表すエラーかどうかを判定する。
//
// 対象:
//   - driver.ErrBadConn, sql.ErrConnDone
//   - context.DeadlineExceeded, context.Canceled
//   - net.Error（ダイヤル失敗、読み書きタイムアウト）
//   - PostgreSQLのClass 08（接続例外）とClass 57（query_canceled等の運用介入）
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return pgerrcode.IsConnectionException(code) || pgerrcode.IsOperatorIntervention(code)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation は一意制約違反（23505）かどうかを判定する。
// 同時挿入の競合を検出し、再読込するために使用する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	return false
}
