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
	goose.AddMigration(up00001, down00001)
}

// entities backs every logical table described in storageclient.TableStore:
// federations, pools, job-location, sequence, blocked-action, DHT roster,
// services, and torrent-info rows each get their own table_name value so
// that a single SQLite file can stand in for the object store's table
// service in local/dev deployments.
func up00001(tx *sql.Tx) error {
	_, err := tx.Exec(
		`CREATE TABLE IF NOT EXISTS entities (
		table_name   text      NOT NULL,
		partition_key text     NOT NULL,
		row_key      text      NOT NULL,
		properties   blob      NOT NULL,
		version      integer   NOT NULL DEFAULT 1,
		updated_at   timestamp DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(table_name, partition_key, row_key)
	);`)
	return err
}

func down00001(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE entities;`)
	return err
}
