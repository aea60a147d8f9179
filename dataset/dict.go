// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

// PaddingId is the id of padding slots. No item is assigned to it.
const PaddingId int32 = 0

// ItemDict maps item names to dense ids starting from 1 and counts how often
// every item occurs.
type ItemDict struct {
	si  map[string]int32
	is  []string
	cnt []int
}

func NewItemDict() *ItemDict {
	return &ItemDict{
		si:  map[string]int32{},
		is:  []string{""},
		cnt: []int{0},
	}
}

// Count returns the number of ids including padding.
func (d *ItemDict) Count() int {
	return len(d.is)
}

// Id returns the id of an item and counts one occurrence. Unseen items are added.
func (d *ItemDict) Id(name string) int32 {
	id := d.NotCount(name)
	d.cnt[id]++
	return id
}

// NotCount returns the id of an item without counting. Unseen items are added.
func (d *ItemDict) NotCount(name string) int32 {
	if id, ok := d.si[name]; ok {
		return id
	}
	id := int32(len(d.is))
	d.si[name] = id
	d.is = append(d.is, name)
	d.cnt = append(d.cnt, 0)
	return id
}

func (d *ItemDict) Lookup(name string) (int32, bool) {
	id, ok := d.si[name]
	return id, ok
}

func (d *ItemDict) Name(id int32) (string, bool) {
	if id <= PaddingId || int(id) >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

func (d *ItemDict) Freq(id int32) int {
	if id < 0 || int(id) >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}
