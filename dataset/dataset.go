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

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"modernc.org/strutil"
)

// Sequence is the behavior history of a user followed by a target item.
type Sequence struct {
	User    string
	History []string
	Target  string
	Label   float32
}

// Dataset holds behavior sequences and indexes every item they mention.
type Dataset struct {
	sequences []Sequence
	items     *ItemDict
	names     *strutil.Pool
}

func NewDataset(count int) *Dataset {
	return &Dataset{
		sequences: make([]Sequence, 0, count),
		items:     NewItemDict(),
		names:     strutil.NewPool(),
	}
}

func (d *Dataset) Count() int {
	return len(d.sequences)
}

func (d *Dataset) GetSequences() []Sequence {
	return d.sequences
}

func (d *Dataset) GetItems() *ItemDict {
	return d.items
}

// AddSequence appends a sequence. Behaviors are counted while the target is only indexed.
func (d *Dataset) AddSequence(sequence Sequence) {
	sequence.User = d.names.Align(sequence.User)
	sequence.Target = d.names.Align(sequence.Target)
	if len(sequence.History) > 0 {
		sequence.History = lo.Map(sequence.History, func(item string, _ int) string {
			d.items.Id(item)
			return d.names.Align(item)
		})
	}
	d.items.NotCount(sequence.Target)
	d.sequences = append(d.sequences, sequence)
}

// LoadDataset reads sequences from a tab separated file. Every line holds
//
//	label<TAB>user<TAB>target<TAB>item1,item2,...
//
// where the history is ordered from the oldest behavior to the latest.
func LoadDataset(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	dataset := NewDataset(0)
	scanner := bufio.NewScanner(file)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, errors.NotValidf("line %d: %d fields", lineNumber, len(fields))
		}
		label, err := strconv.ParseFloat(fields[0], 32)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		var history []string
		if fields[3] != "" {
			history = strings.Split(fields[3], ",")
		}
		dataset.AddSequence(Sequence{
			User:    fields[1],
			History: history,
			Target:  fields[2],
			Label:   float32(label),
		})
	}
	return dataset, errors.Trace(scanner.Err())
}
