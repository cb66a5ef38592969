package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// postgres unique_violation
const pqUniqueViolation = "23505"

// translateError maps driver errors onto repository sentinels
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

// requireAffected turns a write that matched no rows into ErrNotFound
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return mongo.IsDuplicateKeyError(err)
}
