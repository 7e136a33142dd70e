package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しないことを示す。
	ErrNotFound = errors.New("record not found")

	// ErrStaleWrite は条件付き書き込みの前提（オーナー権限、メンバー状態）が
	// 書き込み時点で成立しなかったことを示す。
	ErrStaleWrite = errors.New("write precondition no longer holds")

	// ErrNotPending は招待が既に応答済みであることを示す。
	ErrNotPending = errors.New("invitation is not pending")

	// ErrDuplicate は一意制約違反を示す。
	ErrDuplicate = errors.New("duplicate record")
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はエラーが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
