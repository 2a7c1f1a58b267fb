package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordTable(t *testing.T) {
	table, err := ParseRecordTable("invoices")
	require.NoError(t, err)
	assert.Equal(t, TableInvoices, table)

	_, err = ParseRecordTable("ledgers")
	assert.Error(t, err)
}

func TestTransactionalSplit(t *testing.T) {
	assert.True(t, TableTransactions.IsTransactional())
	assert.True(t, TableScheduledTemplates.IsTransactional())
	assert.False(t, TableAccounts.IsTransactional())
	assert.False(t, TableSettings.IsTransactional())

	// The two sets partition the full table list.
	assert.Len(t, AllTables(), len(TransactionalTables())+5)
}

func TestMutationValidate(t *testing.T) {
	valid := func() *Mutation {
		return &Mutation{
			ID:       uuid.New(),
			TenantID: uuid.New(),
			Table:    TableInvoices,
			Op:       OpCreate,
			RecordID: uuid.New(),
			Payload:  []byte(`{"amount":"10.00"}`),
		}
	}

	require.NoError(t, valid().Validate())

	m := valid()
	m.TenantID = uuid.Nil
	assert.Error(t, m.Validate())

	m = valid()
	m.Table = "ledgers"
	assert.Error(t, m.Validate())

	m = valid()
	m.Op = "upsert"
	assert.Error(t, m.Validate())

	// Creates and updates need a payload, deletes do not.
	m = valid()
	m.Payload = nil
	assert.Error(t, m.Validate())
	m.Op = OpDelete
	assert.NoError(t, m.Validate())
}
