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
	goose.AddMigration(up00003, down00003)
}

// seed_retry_tasks backs cascade/imagedriver/seedretry's persisted retry
// queue for §4.7 step 3's image pull/seed failures: a task surviving a
// node restart must still be retried rather than silently dropped with the
// in-memory seed queue it came from.
func up00003(tx *sql.Tx) error {
	_, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS seed_retry_tasks (
		partition    text      NOT NULL,
		resource     text      NOT NULL,
		created_at   timestamp NOT NULL,
		last_attempt timestamp NOT NULL,
		failures     integer   NOT NULL DEFAULT 0,
		delay        integer   NOT NULL DEFAULT 0,
		status       text      NOT NULL,
		PRIMARY KEY(partition, resource)
	);`)
	return err
}

func down00003(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE seed_retry_tasks;`)
	return err
}
