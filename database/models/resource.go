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

package models

// Resource is the singleton row holding the store's scalar resources. The
// contents are application payload; the core never interprets them.
type Resource struct {
	ID      uint   `gorm:"primarykey"`
	Label   string `gorm:"size:256"`
	Counter int64  `gorm:"not null"`
}

// TableName returns the table name
func (Resource) TableName() string {
	return "resource"
}

// SequenceEntry is one element of the store's ordered sequence resource.
type SequenceEntry struct {
	ID       uint   `gorm:"primarykey"`
	Position uint64 `gorm:"uniqueIndex;not null"`
	Value    string `gorm:"size:256;not null"`
}

// TableName returns the table name
func (SequenceEntry) TableName() string {
	return "sequence_entry"
}
