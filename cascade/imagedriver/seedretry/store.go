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
package seedretry

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/Azure/batch-shipyard-go/lib/persistedretry"
)

// Store stores seedretry tasks in the node's local SQLite database.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store against db, migrated per localdb's
// seed_retry_tasks table.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db}
}

// ResourceQuery finds a task by partition and resource.
type ResourceQuery struct {
	Partition string
	Resource  string
}

// GetPending returns all pending tasks.
func (s *Store) GetPending() ([]persistedretry.Task, error) {
	return s.selectStatus("pending")
}

// GetFailed returns all failed tasks.
func (s *Store) GetFailed() ([]persistedretry.Task, error) {
	return s.selectStatus("failed")
}

// AddPending adds t as pending.
func (s *Store) AddPending(t persistedretry.Task) error {
	return s.addWithStatus(t, "pending")
}

// AddFailed adds t as failed.
func (s *Store) AddFailed(t persistedretry.Task) error {
	return s.addWithStatus(t, "failed")
}

// MarkPending marks t as pending.
func (s *Store) MarkPending(r persistedretry.Task) error {
	res, err := s.db.NamedExec(`
		UPDATE seed_retry_tasks
		SET status = "pending"
		WHERE partition=:partition AND resource=:resource
	`, r.(*Task))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		return persistedretry.ErrTaskNotFound
	}
	return nil
}

// MarkFailed marks t as failed, bumping its failure count.
func (s *Store) MarkFailed(r persistedretry.Task) error {
	t := r.(*Task)
	res, err := s.db.NamedExec(`
		UPDATE seed_retry_tasks
		SET last_attempt = CURRENT_TIMESTAMP,
			failures = failures + 1,
			status = "failed"
		WHERE partition=:partition AND resource=:resource
	`, t)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		return persistedretry.ErrTaskNotFound
	}
	t.Failures++
	t.LastAttempt = time.Now()
	return nil
}

// Remove removes t from the store.
func (s *Store) Remove(r persistedretry.Task) error {
	_, err := s.db.NamedExec(`
		DELETE FROM seed_retry_tasks
		WHERE partition=:partition AND resource=:resource
	`, r.(*Task))
	return err
}

// Find returns tasks matching query, a *ResourceQuery.
func (s *Store) Find(query interface{}) ([]persistedretry.Task, error) {
	q, ok := query.(*ResourceQuery)
	if !ok {
		return nil, errors.New("unknown query type")
	}
	var tasks []*Task
	err := s.db.Select(&tasks, `
		SELECT partition, resource, created_at, last_attempt, failures, delay
		FROM seed_retry_tasks
		WHERE partition=? AND resource=?
	`, q.Partition, q.Resource)
	if err != nil {
		return nil, err
	}
	return convert(tasks), nil
}

func (s *Store) addWithStatus(r persistedretry.Task, status string) error {
	query := fmt.Sprintf(`
		INSERT INTO seed_retry_tasks (
			partition,
			resource,
			created_at,
			last_attempt,
			failures,
			delay,
			status
		) VALUES (
			:partition,
			:resource,
			:created_at,
			:last_attempt,
			:failures,
			:delay,
			%q
		)
	`, status)
	_, err := s.db.NamedExec(query, r.(*Task))
	if se, ok := err.(sqlite3.Error); ok {
		if se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return persistedretry.ErrTaskExists
		}
	}
	return err
}

func (s *Store) selectStatus(status string) ([]persistedretry.Task, error) {
	var tasks []*Task
	err := s.db.Select(&tasks, `
		SELECT partition, resource, created_at, last_attempt, failures, delay
		FROM seed_retry_tasks
		WHERE status=?
	`, status)
	if err != nil {
		return nil, err
	}
	return convert(tasks), nil
}

func convert(tasks []*Task) (result []persistedretry.Task) {
	for _, t := range tasks {
		result = append(result, t)
	}
	return result
}
