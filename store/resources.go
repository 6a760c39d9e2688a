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

package store

import (
	"github.com/blinklabs-io/steward/database/models"
	"github.com/blinklabs-io/steward/identity"
)

// requireReader checks the read gate. Must be called with the mutex held.
func (d *DataStore) requireReader(caller identity.Principal) error {
	if !d.initialized {
		return ErrNotReady
	}
	if !d.registry.isReadAllowed(caller) {
		return ErrPermission
	}
	return nil
}

// requireWriter checks the write gate. Must be called with the mutex held.
func (d *DataStore) requireWriter(caller identity.Principal) error {
	if !d.initialized {
		return ErrNotReady
	}
	if !d.registry.isWriter(caller) {
		return ErrPermission
	}
	return nil
}

// ReadLabel returns the store's string resource
func (d *DataStore) ReadLabel(caller identity.Principal) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireReader(caller); err != nil {
		return "", err
	}
	resource, err := d.db.GetResource(nil)
	if err != nil {
		return "", err
	}
	if resource == nil {
		return "", nil
	}
	return resource.Label, nil
}

// WriteLabel replaces the store's string resource
func (d *DataStore) WriteLabel(caller identity.Principal, label string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireWriter(caller); err != nil {
		return err
	}
	resource, err := d.db.GetResource(nil)
	if err != nil {
		return err
	}
	if resource == nil {
		resource = &models.Resource{}
	}
	resource.Label = label
	return d.db.SetResource(resource, nil)
}

// ReadCounter returns the store's integer resource
func (d *DataStore) ReadCounter(caller identity.Principal) (int64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireReader(caller); err != nil {
		return 0, err
	}
	resource, err := d.db.GetResource(nil)
	if err != nil {
		return 0, err
	}
	if resource == nil {
		return 0, nil
	}
	return resource.Counter, nil
}

// WriteCounter replaces the store's integer resource
func (d *DataStore) WriteCounter(
	caller identity.Principal,
	counter int64,
) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireWriter(caller); err != nil {
		return err
	}
	resource, err := d.db.GetResource(nil)
	if err != nil {
		return err
	}
	if resource == nil {
		resource = &models.Resource{}
	}
	resource.Counter = counter
	return d.db.SetResource(resource, nil)
}

// AppendEntry appends a value to the store's ordered sequence resource
func (d *DataStore) AppendEntry(
	caller identity.Principal,
	value string,
) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireWriter(caller); err != nil {
		return err
	}
	return d.db.AppendSequenceEntry(value, nil)
}

// Entries returns the store's ordered sequence resource
func (d *DataStore) Entries(caller identity.Principal) ([]string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireReader(caller); err != nil {
		return nil, err
	}
	return d.db.GetSequenceEntries(nil)
}

// PutRecord stores one value in the store's nested keyed resource
func (d *DataStore) PutRecord(
	caller identity.Principal,
	namespace string,
	key string,
	value string,
) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireWriter(caller); err != nil {
		return err
	}
	return d.db.SetRecord(namespace, key, []byte(value))
}

// GetRecord retrieves one value from the store's nested keyed resource.
// Returns database.ErrRecordNotFound for an absent key.
func (d *DataStore) GetRecord(
	caller identity.Principal,
	namespace string,
	key string,
) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.requireReader(caller); err != nil {
		return "", err
	}
	value, err := d.db.GetRecord(namespace, key)
	if err != nil {
		return "", err
	}
	return string(value), nil
}
