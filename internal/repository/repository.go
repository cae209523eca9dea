// Package repository provides the gorm data access for the matchmaking
// tables. Every repository can be rebound to a transaction with WithTx so
// that cross-user writes commit or roll back together.
package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// SQLite ignores row locks; there the single-writer connection serializes
// transactions instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
