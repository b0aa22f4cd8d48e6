// Package boltdb provides a persistent tuplestore.Store that keeps tuple
// versions in a single bbolt file, grounded on the teacher's
// pkg/credentials/boltdb.cliCredStore: a dbpath-only handle that opens the
// database per call, one bucket holding every (tuple_id, version) record and
// a second bucket tracking the latest version per tuple_id.
package boltdb

import (
	"encoding/binary"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"go.pqcnet.dev/core/pkg/tuplestore"
)

const (
	connectTimeout = 5 * time.Second
	recordBucket   = "tupleRecords"
	latestBucket   = "tupleLatest"
)

// Store is a tuplestore.Store backed by a bbolt file.
type Store struct {
	dbpath string
}

var _ tuplestore.Store = Store{}

// New opens (creating if absent) a bbolt database at dbpath and returns a
// Store backed by it. It errors if the schema could not be created.
func New(dbpath string) (Store, error) {
	store := Store{dbpath: dbpath}

	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return Store{}, wrapError(err, "failed opening bbolt database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{recordBucket, latestBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); nil != err {
				return wrapError(err, "failed creating bucket %s", name)
			}
		}
		return nil
	})
	if nil != err {
		return Store{}, wrapError(err, "failed schema initialization")
	}

	return store, nil
}

// Store implements tuplestore.Store.
func (self Store) Store(creator []byte, payload tuplestore.Payload) (tuplestore.Receipt, error) {
	if err := payload.Check(); nil != err {
		return tuplestore.Receipt{}, wrapError(err, "invalid payload")
	}

	tupleId := tuplestore.ComputeTupleId(creator, payload.Subject, payload.Predicate)

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return tuplestore.Receipt{}, wrapError(err, "failed opening bbolt database")
	}
	defer db.Close()

	var receipt tuplestore.Receipt
	err = db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		latest := tx.Bucket([]byte(latestBucket))

		version := uint64(1)
		if raw := latest.Get(tupleId[:]); nil != raw {
			version = binary.BigEndian.Uint64(raw) + 1
		}

		record := tuplestore.Record{TupleId: tupleId, Version: version, Creator: creator, Payload: payload}
		srzRecord, err := cbor.Marshal(record)
		if nil != err {
			return wrapError(err, "failed cbor.Marshal(record)")
		}

		if err := records.Put(recordKey(tupleId, version), srzRecord); nil != err {
			return wrapError(err, "failed storing record")
		}

		var versionBytes [8]byte
		binary.BigEndian.PutUint64(versionBytes[:], version)
		if err := latest.Put(tupleId[:], versionBytes[:]); nil != err {
			return wrapError(err, "failed updating latest index")
		}

		receipt = tuplestore.Receipt{TupleId: tupleId, Version: version}
		return nil
	})

	return receipt, wrapError(err, "failed db.Update") // nil if err is nil
}

// Latest implements tuplestore.Store.
func (self Store) Latest(tupleId tuplestore.TupleId) (tuplestore.Record, bool, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return tuplestore.Record{}, false, wrapError(err, "failed opening bbolt database")
	}
	defer db.Close()

	var record tuplestore.Record
	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		latest := tx.Bucket([]byte(latestBucket))
		raw := latest.Get(tupleId[:])
		if nil == raw {
			return nil
		}
		version := binary.BigEndian.Uint64(raw)

		records := tx.Bucket([]byte(recordBucket))
		srzRecord := records.Get(recordKey(tupleId, version))
		if nil == srzRecord {
			return nil
		}
		if err := cbor.Unmarshal(srzRecord, &record); nil != err {
			return wrapError(err, "failed unmarshaling record")
		}
		found = true
		return nil
	})

	return record, found, err
}

// ByVersion implements tuplestore.Store.
func (self Store) ByVersion(tupleId tuplestore.TupleId, version uint64) (tuplestore.Record, bool, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return tuplestore.Record{}, false, wrapError(err, "failed opening bbolt database")
	}
	defer db.Close()

	var record tuplestore.Record
	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		srzRecord := records.Get(recordKey(tupleId, version))
		if nil == srzRecord {
			return nil
		}
		if err := cbor.Unmarshal(srzRecord, &record); nil != err {
			return wrapError(err, "failed unmarshaling record")
		}
		found = true
		return nil
	})

	return record, found, err
}

// PruneExpired implements tuplestore.Store.
func (self Store) PruneExpired(nowMs uint64) (int, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return 0, wrapError(err, "failed opening bbolt database")
	}
	defer db.Close()

	removed := 0
	err = db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		c := records.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); nil != k; k, v = c.Next() {
			var record tuplestore.Record
			if err := cbor.Unmarshal(v, &record); nil != err {
				return wrapError(err, "failed unmarshaling record during prune")
			}
			if record.Payload.ExpiryMs != 0 && record.Payload.ExpiryMs <= nowMs {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, key := range toDelete {
			if err := records.Delete(key); nil != err {
				return wrapError(err, "failed deleting expired record")
			}
			removed++
		}
		return nil
	})

	return removed, err
}

func recordKey(tupleId tuplestore.TupleId, version uint64) []byte {
	key := make([]byte, 16+8)
	copy(key, tupleId[:])
	binary.BigEndian.PutUint64(key[16:], version)
	return key
}
