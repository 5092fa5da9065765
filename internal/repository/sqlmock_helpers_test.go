package repository_test

import (
	"database/sql/driver"
)

// sqlmockArgumentFunc adapts a predicate to sqlmock's Argument interface.
type sqlmockArgumentFunc func(v driver.Value) bool

func (f sqlmockArgumentFunc) Match(v driver.Value) bool { return f(v) }
