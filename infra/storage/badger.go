package storage

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger"

	"github.com/carebox/carebox/core/logger"
	"github.com/carebox/carebox/core/model"
)

const medPrefix = "med/"

// BadgerStore persists medication records in a Badger database, one
// JSON value per medication under the med/ prefix.
type BadgerStore struct {
	db  *badger.DB
	log logger.Logger
}

// NewBadgerStore opens or creates the database at dir.
func NewBadgerStore(dir string, log logger.Logger) (*BadgerStore, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

func medKey(id string) []byte { return []byte(medPrefix + id) }

// Save writes one medication record.
func (s *BadgerStore) Save(med model.Medication) error {
	val, err := json.Marshal(med)
	if err != nil {
		return fmt.Errorf("encode %s: %w", med.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(medKey(med.ID), val)
	})
}

// Delete removes one medication record. Deleting an absent record is
// not an error.
func (s *BadgerStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(medKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// LoadAll reads every medication record, in key order.
func (s *BadgerStore) LoadAll() ([]model.Medication, error) {
	var meds []model.Medication
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(medPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var med model.Medication
				if err := json.Unmarshal(val, &med); err != nil {
					s.log.Warnf("skipping corrupt record %s: %v", item.Key(), err)
					return nil
				}
				meds = append(meds, med)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meds, nil
}

// Commit forces the writes to disk.
func (s *BadgerStore) Commit() error {
	return s.db.Sync()
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
