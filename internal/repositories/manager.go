// Package repositories vends store implementations bound to a DB handle, so
// services can run the same repositories inside or outside a transaction.
package repositories

import (
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/repositories/sessions"
	"github.com/ezvendo/portal/internal/repositories/transactions"
	"github.com/ezvendo/portal/internal/repositories/users"
)

type Manager interface {
	Users(conn db.DBTX) users.Repository
	Transactions(conn db.DBTX) transactions.Repository
	Sessions(conn db.DBTX) sessions.Repository
}

// MySQLManager vends MySQL-backed repositories.
type MySQLManager struct{}

func NewMySQLManager() *MySQLManager { return &MySQLManager{} }

func (m *MySQLManager) Users(conn db.DBTX) users.Repository {
	return users.NewMySQLRepository(conn)
}

func (m *MySQLManager) Transactions(conn db.DBTX) transactions.Repository {
	return transactions.NewMySQLRepository(conn)
}

func (m *MySQLManager) Sessions(conn db.DBTX) sessions.Repository {
	return sessions.NewMySQLRepository(conn)
}
