// Package repository holds the MySQL-backed persistence for users,
// refresh-token sessions and comments.
//
// Repositories return the sentinel errors below; the service layer maps
// them onto API error kinds.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrNicknameTaken is returned when a concurrent insert claimed the derived
// nickname first. Callers re-derive and retry.
var ErrNicknameTaken = errors.New("nickname already taken")

const (
	mysqlDuplicateEntry = 1062
	mysqlForeignKey     = 1452
)

// ErrMissingReference is returned when an insert references a row (post,
// parent comment, user) that does not exist.
var ErrMissingReference = errors.New("referenced row does not exist")

func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return strings.ToLower(me.Message), true
	}
	return "", false
}

func missingReference(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlForeignKey
}
