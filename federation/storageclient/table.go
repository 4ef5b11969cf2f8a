package storageclient

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// TableStore is a typed wrapper over the object store's table service,
// exposing optimistic-concurrency reads/writes keyed by (table, partition
// key, row key), matching §4.1's get_entity/query_entities/insert/merge/
// update/delete operations.
type TableStore interface {
	// GetEntity returns the entity at (partitionKey, rowKey) in table, or
	// ErrEntityNotFound.
	GetEntity(table, partitionKey, rowKey string) (*Entity, error)

	// QueryEntities returns every entity in table whose partition key equals
	// partitionKey.
	QueryEntities(table, partitionKey string) ([]*Entity, error)

	// QueryEntitiesByPartitionPrefix returns every entity in table whose
	// partition key starts with prefix, used to scan the per-job location
	// entities of a federation without knowing the job ids up front.
	QueryEntitiesByPartitionPrefix(table, prefix string) ([]*Entity, error)

	// InsertEntity creates a new row. Fails if one already exists at the
	// same keys.
	InsertEntity(table string, e *Entity) error

	// MergeEntity upserts properties into an existing (or new) row without
	// requiring a matching etag; used for concurrent, idempotent writes like
	// the cascade services table merge.
	MergeEntity(table string, e *Entity, merge func(existing *Entity)) (*Entity, error)

	// UpdateEntityWithETag replaces the row's properties, failing with
	// ErrETagMismatch if e.ETag no longer matches the stored value.
	UpdateEntityWithETag(table string, e *Entity) error

	// DeleteEntity removes the row at (partitionKey, rowKey). If etag is
	// non-empty, the delete only succeeds if it matches the stored etag.
	DeleteEntity(table, partitionKey, rowKey, etag string) error
}

type sqliteTableStore struct {
	db *sqlx.DB
}

// NewSQLiteTableStore returns a TableStore backed by an embedded SQLite
// database, matching localdb.New's goose-migration pattern: the entities
// table's version column plays the role of an Azure Table Storage etag.
func NewSQLiteTableStore(db *sqlx.DB) TableStore {
	return &sqliteTableStore{db}
}

type entityRow struct {
	TableName    string `db:"table_name"`
	PartitionKey string `db:"partition_key"`
	RowKey       string `db:"row_key"`
	Properties   []byte `db:"properties"`
	Version      int    `db:"version"`
}

func (r *entityRow) toEntity() (*Entity, error) {
	props := make(map[string]string)
	if len(r.Properties) > 0 {
		if err := json.Unmarshal(r.Properties, &props); err != nil {
			return nil, fmt.Errorf("unmarshal properties: %s", err)
		}
	}
	return &Entity{
		PartitionKey: r.PartitionKey,
		RowKey:       r.RowKey,
		Properties:   props,
		ETag:         fmt.Sprintf("%d", r.Version),
	}, nil
}

func (s *sqliteTableStore) GetEntity(table, partitionKey, rowKey string) (*Entity, error) {
	var row entityRow
	err := s.db.Get(&row, `
		SELECT table_name, partition_key, row_key, properties, version
		FROM entities WHERE table_name=? AND partition_key=? AND row_key=?`,
		table, partitionKey, rowKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (s *sqliteTableStore) QueryEntities(table, partitionKey string) ([]*Entity, error) {
	var rows []entityRow
	err := s.db.Select(&rows, `
		SELECT table_name, partition_key, row_key, properties, version
		FROM entities WHERE table_name=? AND partition_key=? ORDER BY row_key`,
		table, partitionKey)
	if err != nil {
		return nil, err
	}
	entities := make([]*Entity, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (s *sqliteTableStore) QueryEntitiesByPartitionPrefix(table, prefix string) ([]*Entity, error) {
	var rows []entityRow
	err := s.db.Select(&rows, `
		SELECT table_name, partition_key, row_key, properties, version
		FROM entities WHERE table_name=? AND partition_key LIKE ? ESCAPE '\' ORDER BY partition_key, row_key`,
		table, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	entities := make([]*Entity, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// escapeLike escapes SQLite LIKE wildcards so a literal prefix can't be
// misinterpreted as a pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func (s *sqliteTableStore) InsertEntity(table string, e *Entity) error {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %s", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO entities (table_name, partition_key, row_key, properties, version)
		VALUES (?, ?, ?, ?, 1)`,
		table, e.PartitionKey, e.RowKey, props)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	e.ETag = "1"
	return nil
}

func (s *sqliteTableStore) MergeEntity(
	table string, e *Entity, merge func(existing *Entity)) (*Entity, error) {

	for {
		existing, err := s.GetEntity(table, e.PartitionKey, e.RowKey)
		if errors.Is(err, ErrEntityNotFound) {
			fresh := e.Clone()
			if merge != nil {
				merge(fresh)
			}
			if err := s.InsertEntity(table, fresh); err != nil {
				if isUniqueConstraint(err) {
					continue // lost a race to insert; retry as a merge.
				}
				return nil, err
			}
			return fresh, nil
		}
		if err != nil {
			return nil, err
		}
		if merge != nil {
			merge(existing)
		}
		if err := s.UpdateEntityWithETag(table, existing); err != nil {
			if errors.Is(err, ErrETagMismatch) {
				continue
			}
			return nil, err
		}
		return existing, nil
	}
}

func (s *sqliteTableStore) UpdateEntityWithETag(table string, e *Entity) error {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %s", err)
	}
	res, err := s.db.Exec(`
		UPDATE entities SET properties=?, version=version+1, updated_at=CURRENT_TIMESTAMP
		WHERE table_name=? AND partition_key=? AND row_key=? AND version=?`,
		props, table, e.PartitionKey, e.RowKey, e.ETag)
	if err != nil {
		return fmt.Errorf("update entity: %s", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrETagMismatch
	}
	newETag, err := parseETag(e.ETag)
	if err != nil {
		return err
	}
	e.ETag = fmt.Sprintf("%d", newETag+1)
	return nil
}

func (s *sqliteTableStore) DeleteEntity(table, partitionKey, rowKey, etag string) error {
	var (
		res sql.Result
		err error
	)
	if etag == "" {
		res, err = s.db.Exec(`
			DELETE FROM entities WHERE table_name=? AND partition_key=? AND row_key=?`,
			table, partitionKey, rowKey)
	} else {
		res, err = s.db.Exec(`
			DELETE FROM entities WHERE table_name=? AND partition_key=? AND row_key=? AND version=?`,
			table, partitionKey, rowKey, etag)
	}
	if err != nil {
		return fmt.Errorf("delete entity: %s", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if etag != "" {
			return ErrETagMismatch
		}
		return ErrEntityNotFound
	}
	return nil
}

func parseETag(etag string) (int, error) {
	var v int
	_, err := fmt.Sscanf(etag, "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("parse etag %q: %s", etag, err)
	}
	return v, nil
}

func isUniqueConstraint(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "constraint failed"))
}
