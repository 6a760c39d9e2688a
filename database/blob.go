// Copyright 2025 Blink Labs Software
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

package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

var ErrRecordNotFound = errors.New("record not found")

// recordKey builds the blob key for a nested record. Namespace and key are
// joined with a separator neither may contain.
func recordKey(namespace, key string) []byte {
	return fmt.Appendf(nil, "record/%s/%s", namespace, key)
}

// SetRecord stores one nested record value under namespace/key
func (d *Database) SetRecord(namespace, key string, value []byte) error {
	return d.blob.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(namespace, key), value)
	})
}

// GetRecord retrieves one nested record value. Returns ErrRecordNotFound if
// no value has been stored under namespace/key.
func (d *Database) GetRecord(namespace, key string) ([]byte, error) {
	var ret []byte
	err := d.blob.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(namespace, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// DeleteRecord removes one nested record. Deleting an absent record is not
// an error.
func (d *Database) DeleteRecord(namespace, key string) error {
	return d.blob.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(namespace, key))
	})
}

// RecordKeys returns the keys present under a namespace, in key order
func (d *Database) RecordKeys(namespace string) ([]string, error) {
	prefix := fmt.Appendf(nil, "record/%s/", namespace)
	var ret []string
	err := d.blob.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			ret = append(ret, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// BadgerLogger is a wrapper type to give our logger the expected interface
type BadgerLogger struct {
	*slog.Logger
}

func NewBadgerLogger(logger *slog.Logger) *BadgerLogger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &BadgerLogger{Logger: logger}
}

func (b *BadgerLogger) Infof(msg string, args ...any) {
	b.Logger.Info(strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n"))
}

func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.Logger.Warn(strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n"))
}

func (b *BadgerLogger) Debugf(msg string, args ...any) {
	b.Logger.Debug(strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n"))
}

func (b *BadgerLogger) Errorf(msg string, args ...any) {
	b.Logger.Error(strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n"))
}
