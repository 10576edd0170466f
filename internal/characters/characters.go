/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package characters holds the read-only character collection that panels reference by id.
package characters

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Character is one selectable identity. Description feeds image prompts.
type Character struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description" json:"description"`
}

// Collection is an ordered, immutable set of characters.
// Its order defines the order of descriptions in prompts.
type Collection struct {
	items []Character
	index map[string]int
}

// New builds a collection. Later duplicates of an id are ignored.
func New(chars ...Character) *Collection {
	c := &Collection{index: make(map[string]int, len(chars))}
	for _, ch := range chars {
		if ch.ID == "" {
			continue
		}
		if _, dup := c.index[ch.ID]; dup {
			continue
		}
		c.index[ch.ID] = len(c.items)
		c.items = append(c.items, ch)
	}
	return c
}

type fileFormat struct {
	Characters []Character `yaml:"characters"`
}

// Parse reads a collection from YAML or JSON. Both a top-level list and a
// document with a "characters" key are accepted.
func Parse(data []byte) (*Collection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return New(), nil
	}
	var list []Character
	if data[0] == '[' || data[0] == '-' {
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse characters: %w", err)
		}
	} else {
		var doc fileFormat
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse characters: %w", err)
		}
		list = doc.Characters
	}
	for i, ch := range list {
		if strings.TrimSpace(ch.ID) == "" {
			return nil, fmt.Errorf("parse characters: entry %d has no id", i)
		}
	}
	return New(list...), nil
}

// Load reads a collection file from disk. A missing file yields an empty collection.
func Load(path string) (*Collection, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read characters: %w", err)
	}
	return Parse(b)
}

// Len returns the number of characters.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// All returns a copy of the characters in collection order.
func (c *Collection) All() []Character {
	if c == nil {
		return nil
	}
	return append([]Character(nil), c.items...)
}

// IDs returns the ids in collection order.
func (c *Collection) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, len(c.items))
	for i, ch := range c.items {
		ids[i] = ch.ID
	}
	return ids
}

// Lookup finds a character by id.
func (c *Collection) Lookup(id string) (Character, bool) {
	if c == nil {
		return Character{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Character{}, false
	}
	return c.items[i], true
}

// Has reports whether id is part of the collection.
func (c *Collection) Has(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// Descriptions returns the descriptions of the characters whose id is in ids,
// in collection order. Unknown ids and blank descriptions contribute nothing.
func (c *Collection) Descriptions(ids []string) []string {
	if c == nil || len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []string
	for _, ch := range c.items {
		if _, ok := want[ch.ID]; !ok {
			continue
		}
		if d := strings.TrimSpace(ch.Description); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Missing returns the ids in ids that are not part of the collection, in input order.
func (c *Collection) Missing(ids []string) []string {
	var out []string
	for _, id := range ids {
		if !c.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
