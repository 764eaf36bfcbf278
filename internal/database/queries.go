/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	// Table registry queries
	queryRegisterTable = `
		INSERT OR IGNORE INTO store_tables (name) VALUES (?)`

	// Entity queries
	queryInsertEntity = `
		INSERT OR IGNORE INTO table_entities (table_name, partition_key, row_key, properties, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)`

	queryGetEntity = `
		SELECT partition_key, row_key, properties, version, updated_at
		FROM table_entities
		WHERE table_name = ? AND partition_key = ? AND row_key = ?`

	queryUpdateEntity = `
		UPDATE table_entities
		SET properties = ?, version = version + 1, updated_at = ?
		WHERE table_name = ? AND partition_key = ? AND row_key = ? AND version = ?
		RETURNING version`

	queryUpsertEntity = `
		INSERT INTO table_entities (table_name, partition_key, row_key, properties, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (table_name, partition_key, row_key) DO UPDATE SET
			properties = excluded.properties,
			version = table_entities.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`

	queryDeleteEntity = `
		DELETE FROM table_entities
		WHERE table_name = ? AND partition_key = ? AND row_key = ?`

	queryEntityExists = `
		SELECT COUNT(1)
		FROM table_entities
		WHERE table_name = ? AND partition_key = ? AND row_key = ?`

	querySelectEntities = `
		SELECT partition_key, row_key, properties, version, updated_at
		FROM table_entities
		WHERE table_name = ?`

	orderEntities = `
		ORDER BY partition_key, row_key`
)

const schema = `
	-- Registry of logical tables
	CREATE TABLE IF NOT EXISTS store_tables (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Every logical table shares one physical table keyed by (table, partition, row)
	CREATE TABLE IF NOT EXISTS table_entities (
		table_name TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		row_key TEXT NOT NULL,
		properties TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (table_name, partition_key, row_key)
	);

	-- Cross-partition lookups by row key
	CREATE INDEX IF NOT EXISTS idx_table_entities_row ON table_entities(table_name, row_key);
`
