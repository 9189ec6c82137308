// Package storage defines the persistence port of the record store.
// Implementations live under infra/storage; the engine only ever sees
// whole medication records, never the underlying key scheme.
package storage

import "github.com/carebox/carebox/core/model"

// Store persists medication records. Save must be durable after Commit;
// intermediate writes may be buffered.
type Store interface {
	Save(med model.Medication) error
	Delete(id string) error
	LoadAll() ([]model.Medication, error)
	Commit() error
	Close() error
}
