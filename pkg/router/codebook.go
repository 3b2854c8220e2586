// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Thermoquad/beacon/pkg/message"
)

// CodeBook errors
var (
	ErrEmptyName     = errors.New("empty code name")
	ErrDuplicateName = errors.New("duplicate code name")
	ErrDuplicateCode = errors.New("duplicate code")
)

// Entry binds a name to an IR code.
type Entry struct {
	Name string
	Code message.IRCode
}

// CodeBook maps IR codes to names and back. The two directions are exact
// inverses and never change after NewCodeBook returns.
type CodeBook struct {
	byCode  map[message.IRCode]string
	byName  map[string]message.IRCode
	entries []Entry
}

// NewCodeBook builds a CodeBook, rejecting empty names and any name or code
// that appears twice.
func NewCodeBook(entries []Entry) (*CodeBook, error) {
	cb := &CodeBook{
		byCode:  make(map[message.IRCode]string, len(entries)),
		byName:  make(map[string]message.IRCode, len(entries)),
		entries: make([]Entry, 0, len(entries)),
	}
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyName)
		}
		if _, ok := cb.byName[e.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		if other, ok := cb.byCode[e.Code]; ok {
			return nil, fmt.Errorf("%w: %q and %q share %s", ErrDuplicateCode, other, e.Name, e.Code)
		}
		cb.byCode[e.Code] = e.Name
		cb.byName[e.Name] = e.Code
		cb.entries = append(cb.entries, e)
	}
	return cb, nil
}

// Name returns the name bound to code.
func (cb *CodeBook) Name(code message.IRCode) (string, bool) {
	name, ok := cb.byCode[code]
	return name, ok
}

// Code returns the code bound to name.
func (cb *CodeBook) Code(name string) (message.IRCode, bool) {
	code, ok := cb.byName[name]
	return code, ok
}

// Len returns the number of entries.
func (cb *CodeBook) Len() int {
	return len(cb.entries)
}

// Entries returns the entries in the order they were given.
func (cb *CodeBook) Entries() []Entry {
	return append([]Entry(nil), cb.entries...)
}

// Names returns every name, sorted.
func (cb *CodeBook) Names() []string {
	names := make([]string, 0, len(cb.byName))
	for name := range cb.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
