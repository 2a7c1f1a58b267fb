// Package models defines the core data types shared between the Quillbooks
// server and client.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordTable identifies a business-record table. The set is closed: adding a
// table is a compile-time change that must also be reflected in
// TransactionalTables and the snapshot codec.
type RecordTable string

const (
	// Transactional tables. These are the tables wiped by a purge.
	TableTransactions       RecordTable = "transactions"
	TableInvoices           RecordTable = "invoices"
	TableBills              RecordTable = "bills"
	TableContracts          RecordTable = "contracts"
	TableAgreements         RecordTable = "agreements"
	TableReturns            RecordTable = "returns"
	TablePayStatements      RecordTable = "pay_statements"
	TableScheduledTemplates RecordTable = "scheduled_templates"

	// Master tables. A purge never deletes rows from these; accounts only
	// have their balances reset.
	TableAccounts   RecordTable = "accounts"
	TableContacts   RecordTable = "contacts"
	TableCategories RecordTable = "categories"
	TableOrgUnits   RecordTable = "org_units"
	TableSettings   RecordTable = "settings"
)

// TransactionalTables returns the tables cleared by a purge, in a fixed order.
func TransactionalTables() []RecordTable {
	return []RecordTable{
		TableTransactions,
		TableInvoices,
		TableBills,
		TableContracts,
		TableAgreements,
		TableReturns,
		TablePayStatements,
		TableScheduledTemplates,
	}
}

// AllTables returns every known table, transactional tables first.
func AllTables() []RecordTable {
	return append(TransactionalTables(),
		TableAccounts,
		TableContacts,
		TableCategories,
		TableOrgUnits,
		TableSettings,
	)
}

// IsValid checks whether the table name is a recognized value.
func (t RecordTable) IsValid() bool {
	for _, known := range AllTables() {
		if t == known {
			return true
		}
	}
	return false
}

// IsTransactional reports whether rows in this table are deleted by a purge.
func (t RecordTable) IsTransactional() bool {
	for _, tt := range TransactionalTables() {
		if t == tt {
			return true
		}
	}
	return false
}

// ParseRecordTable converts a string into a RecordTable, rejecting unknown names.
func ParseRecordTable(s string) (RecordTable, error) {
	t := RecordTable(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown record table %q", s)
	}
	return t, nil
}

// Record is the opaque envelope for one business record. The sync layer never
// interprets Payload beyond the identifier and table name.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	Table     RecordTable     `json:"table"`
	Payload   json.RawMessage `json:"payload"`
	Deleted   bool            `json:"deleted"`
	UpdatedAt time.Time       `json:"updated_at"`
}
