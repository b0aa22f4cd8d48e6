// Package pgdb provides a persistent tuplestore.Store backed by postgres,
// grounded on the teacher's pkg/credentials/pgdb.ServerCredStore: a PGDB
// interface satisfied by *pgxpool.Pool/pgx.Conn/pgx.Tx alike, SQL embedded
// via go:embed, and errors.Is(pgx.ErrNoRows) translated to a false found
// result rather than an error.
package pgdb

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go.pqcnet.dev/core/pkg/tuplestore"
)

// PGDB is implemented by pgx.Tx, pgx.Conn and pgxpool.Pool.
type PGDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

//go:embed tuplestore_schema.sql
var schemaScript string

// Migrate creates the tuple_record table and its indexes if absent.
func Migrate(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, schemaScript)
	return wrapError(err, "failed schema migration")
}

// Store is a tuplestore.Store backed by a PGDB connection or pool.
type Store struct {
	DB PGDB
}

var _ tuplestore.Store = Store{}

// New returns a Store backed by a freshly created connection pool to dsn.
func New(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if nil != err {
		return Store{}, wrapError(err, "failed connection pool creation")
	}
	return Store{DB: pool}, nil
}

// Store implements tuplestore.Store. ctx defaults to context.Background()
// since tuplestore.Store's interface carries no context parameter.
func (self Store) Store(creator []byte, payload tuplestore.Payload) (tuplestore.Receipt, error) {
	if err := payload.Check(); nil != err {
		return tuplestore.Receipt{}, wrapError(err, "invalid payload")
	}

	ctx := context.Background()
	tupleId := tuplestore.ComputeTupleId(creator, payload.Subject, payload.Predicate)

	var version int64
	row := self.DB.QueryRow(
		ctx,
		`INSERT INTO tuple_record(tuple_id, version, creator, subject, predicate, object, proof, expiry_ms, stored_ms)
		 SELECT $1, coalesce((SELECT max(version) FROM tuple_record WHERE tuple_id = $1), 0) + 1,
		        $2, $3, $4, $5, $6, $7, $8
		 RETURNING version`,
		tupleId[:],
		creator,
		payload.Subject,
		payload.Predicate,
		payload.Object,
		payload.Proof,
		int64(payload.ExpiryMs),
		int64(0),
	)
	if err := row.Scan(&version); nil != err {
		return tuplestore.Receipt{}, wrapError(err, "failed inserting tuple record")
	}

	return tuplestore.Receipt{TupleId: tupleId, Version: uint64(version)}, nil
}

// Latest implements tuplestore.Store.
func (self Store) Latest(tupleId tuplestore.TupleId) (tuplestore.Record, bool, error) {
	row := self.DB.QueryRow(
		context.Background(),
		`SELECT version, creator, subject, predicate, object, proof, expiry_ms, stored_ms
		 FROM tuple_record WHERE tuple_id = $1
		 ORDER BY version DESC LIMIT 1`,
		tupleId[:],
	)
	return scanRecord(row, tupleId)
}

// ByVersion implements tuplestore.Store.
func (self Store) ByVersion(tupleId tuplestore.TupleId, version uint64) (tuplestore.Record, bool, error) {
	row := self.DB.QueryRow(
		context.Background(),
		`SELECT version, creator, subject, predicate, object, proof, expiry_ms, stored_ms
		 FROM tuple_record WHERE tuple_id = $1 AND version = $2`,
		tupleId[:],
		int64(version),
	)
	return scanRecord(row, tupleId)
}

func scanRecord(row pgx.Row, tupleId tuplestore.TupleId) (tuplestore.Record, bool, error) {
	var record tuplestore.Record
	var version, expiryMs, storedMs int64
	err := row.Scan(&version, &record.Creator, &record.Payload.Subject, &record.Payload.Predicate,
		&record.Payload.Object, &record.Payload.Proof, &expiryMs, &storedMs)
	if nil != err {
		if errors.Is(err, pgx.ErrNoRows) {
			return tuplestore.Record{}, false, nil
		}
		return tuplestore.Record{}, false, wrapError(err, "failed loading tuple record")
	}
	record.TupleId = tupleId
	record.Version = uint64(version)
	record.Payload.ExpiryMs = uint64(expiryMs)
	record.StoredMs = uint64(storedMs)
	return record, true, nil
}

// PruneExpired implements tuplestore.Store.
func (self Store) PruneExpired(nowMs uint64) (int, error) {
	tag, err := self.DB.Exec(
		context.Background(),
		`DELETE FROM tuple_record WHERE expiry_ms != 0 AND expiry_ms <= $1`,
		int64(nowMs),
	)
	if nil != err {
		return 0, wrapError(err, "failed pruning expired tuple records")
	}
	return int(tag.RowsAffected()), nil
}
