// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package migrations

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(up00002, down00002)
}

// queue_messages and leases are created for a SQLite-backed queue and lease
// store; no store in the module reads or writes them, and storageclient's
// QueueStore and LeaseStore are Redis-backed.
func up00002(tx *sql.Tx) error {
	if _, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS queue_messages (
		queue        text      NOT NULL,
		message_id   text      NOT NULL,
		body         blob      NOT NULL,
		visible_at   integer   NOT NULL,
		expires_at   integer   NOT NULL,
		PRIMARY KEY(queue, message_id)
	);`); err != nil {
		return err
	}
	_, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS leases (
		container    text      NOT NULL,
		blob_name    text      NOT NULL,
		owner_token  text      NOT NULL,
		expires_at   integer   NOT NULL,
		PRIMARY KEY(container, blob_name)
	);`)
	return err
}

func down00002(tx *sql.Tx) error {
	if _, err := tx.Exec(`DROP TABLE queue_messages;`); err != nil {
		return err
	}
	_, err := tx.Exec(`DROP TABLE leases;`)
	return err
}
