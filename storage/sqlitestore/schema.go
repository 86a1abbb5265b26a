// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schemaStatements creates every table sqlitestore needs. Run once per
// connection, guarded by "IF NOT EXISTS" so opening an existing
// database is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS seed (
		id    INTEGER PRIMARY KEY CHECK (id = 0),
		value BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cores (
		discovery_key BLOB PRIMARY KEY,
		version       INTEGER NOT NULL,
		created_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS aliases (
		namespace     BLOB NOT NULL,
		name          TEXT NOT NULL,
		discovery_key BLOB NOT NULL,
		PRIMARY KEY (namespace, name)
	)`,
	`CREATE TABLE IF NOT EXISTS auth (
		discovery_key BLOB PRIMARY KEY,
		record        BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_data (
		discovery_key BLOB NOT NULL,
		key           TEXT NOT NULL,
		value         BLOB NOT NULL,
		PRIMARY KEY (discovery_key, key)
	)`,
}

func applySchema(conn *sqlite.Conn) error {
	for _, statement := range schemaStatements {
		if err := sqlitex.ExecuteTransient(conn, statement, nil); err != nil {
			return fmt.Errorf("sqlitestore: applying schema: %w", err)
		}
	}
	return nil
}
