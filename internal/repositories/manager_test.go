package repositories

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezvendo/portal/internal/repositories/sessions"
	"github.com/ezvendo/portal/internal/repositories/transactions"
	"github.com/ezvendo/portal/internal/repositories/users"
)

func TestMySQLManager_VendsMySQLRepositories(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	m := NewMySQLManager()
	assert.IsType(t, &users.MySQLRepository{}, m.Users(conn))
	assert.IsType(t, &transactions.MySQLRepository{}, m.Transactions(conn))
	assert.IsType(t, &sessions.MySQLRepository{}, m.Sessions(conn))
}
