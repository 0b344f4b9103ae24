// Copyright 2025 walteh LLC
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

// Package stream models the SRCSRV script embedded into debug-symbol files.
//
// A stream is three ordered sections: an ini header with fixed keys, a
// variables section whose values may reference other variables via %name%
// placeholders or table columns via %varN%, and a source-file table of
// *-delimited rows. The textual grammar is consumed by third-party debuggers
// and is reproduced byte for byte.
package stream

import (
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Section delimiter lines, dash-padded to 60 columns.
const (
	delimWidth = 60

	sectionIni       = "ini"
	sectionVariables = "variables"
	sectionFiles     = "source files"
	sectionEnd       = "end"
)

// Reserved variable names with meaning to the debugger.
const (
	// VarTarget is the local cache target path template
	VarTarget = "SRCSRVTRG"
	// VarCommand is the command line the debugger executes to fetch a file
	VarCommand = "SRCSRVCMD"
)

// 🧾 Var is one KEY=VALUE line of the ini or variables section
type Var struct {
	Key   string
	Value string
}

// 📄 Entry is one row of the source-file table. BuildPath is the lookup key
// the debugger matches against paths recorded in the symbol file. Extra holds
// provider-chosen trailing columns.
type Entry struct {
	BuildPath string
	RepoPath  string
	FileName  string
	Digest    string
	Extra     []string
}

// Column returns the positional column value for %varN% (1-based).
func (e *Entry) Column(n int) (string, bool) {
	switch n {
	case 1:
		return e.BuildPath, true
	case 2:
		return e.RepoPath, true
	case 3:
		return e.FileName, true
	case 4:
		return e.Digest, true
	}
	if i := n - 5; i >= 0 && i < len(e.Extra) {
		return e.Extra[i], true
	}
	return "", false
}

func (e *Entry) row() string {
	cols := append([]string{e.BuildPath, e.RepoPath, e.FileName, e.Digest}, e.Extra...)
	// No escaping for '*' inside fields. Accepted format limitation.
	return strings.Join(cols, "*")
}

// 📜 Document is an in-memory SRCSRV stream
type Document struct {
	Ini       []Var
	Variables []Var
	Files     []Entry
}

// 🏭 New creates a document with the fixed debugger-facing header
func New() *Document {
	return &Document{
		Ini: []Var{
			{Key: "VERSION", Value: "2"},
			{Key: "VERCTRL", Value: ""},
		},
	}
}

func setVar(vars []Var, key, value string) []Var {
	for i := range vars {
		if strings.EqualFold(vars[i].Key, key) {
			vars[i].Value = value
			return vars
		}
	}
	return append(vars, Var{Key: key, Value: value})
}

// SetVar appends a variable, replacing any existing value for the key.
func (d *Document) SetVar(key, value string) {
	d.Variables = setVar(d.Variables, key, value)
}

// Var looks up a variables-section value by key, case-insensitively.
func (d *Document) Var(key string) (string, bool) {
	for _, v := range d.Variables {
		if strings.EqualFold(v.Key, key) {
			return v.Value, true
		}
	}
	return "", false
}

// AddFile appends an entry. Rows are keyed by BuildPath and a duplicate
// overwrites the earlier row in place.
func (d *Document) AddFile(e Entry) {
	for i := range d.Files {
		if strings.EqualFold(d.Files[i].BuildPath, e.BuildPath) {
			d.Files[i] = e
			return
		}
	}
	d.Files = append(d.Files, e)
}

func delimiter(section string) string {
	line := "SRCSRV: " + section + " "
	if pad := delimWidth - len(line); pad > 0 {
		line += strings.Repeat("-", pad)
	}
	return line
}

// Validate checks that every %placeholder% in the variables section resolves
// to another variable key or to a positional table column.
func (d *Document) Validate() error {
	for _, v := range d.Variables {
		for _, ref := range placeholders(v.Value) {
			if _, n := columnRef(ref); n {
				continue
			}
			if _, ok := d.Var(ref); !ok {
				return errors.Errorf("variable %s references undefined %%%s%%", v.Key, ref)
			}
		}
	}
	return nil
}

// Render validates the variables section and serializes the document.
// Variable values stay literal; the debugger performs its own substitution
// when it executes the stream.
func (d *Document) Render() (string, error) {
	if err := d.Validate(); err != nil {
		return "", errors.Errorf("rendering stream: %w", err)
	}

	var b strings.Builder
	b.WriteString(delimiter(sectionIni))
	b.WriteByte('\n')
	for _, v := range d.Ini {
		b.WriteString(v.Key)
		b.WriteByte('=')
		b.WriteString(v.Value)
		b.WriteByte('\n')
	}
	b.WriteString(delimiter(sectionVariables))
	b.WriteByte('\n')
	for _, v := range d.Variables {
		b.WriteString(v.Key)
		b.WriteByte('=')
		b.WriteString(v.Value)
		b.WriteByte('\n')
	}
	b.WriteString(delimiter(sectionFiles))
	b.WriteByte('\n')
	for i := range d.Files {
		b.WriteString(d.Files[i].row())
		b.WriteByte('\n')
	}
	b.WriteString(delimiter(sectionEnd))
	b.WriteByte('\n')
	return b.String(), nil
}

// Expand substitutes placeholders in the named variable against the variable
// table and one entry's positional columns. Substitution is a single left to
// right pass: a substituted value is never rescanned, which bounds expansion
// and rules out cycles. A table placeholder with no matching column is a
// dispatch-time error.
func (d *Document) Expand(name string, e *Entry) (string, error) {
	value, ok := d.Var(name)
	if !ok {
		return "", errors.Errorf("expanding %%%s%%: variable not defined", name)
	}

	var b strings.Builder
	rest := value
	for {
		start := strings.IndexByte(rest, '%')
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[start+1:], '%')
		if end < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		ref := rest[start+1 : start+1+end]
		b.WriteString(rest[:start])

		if n, ok := columnRef(ref); ok {
			col, ok := e.Column(n)
			if !ok {
				return "", errors.Errorf("expanding %%%s%%: entry %s has no column %d", name, e.BuildPath, n)
			}
			b.WriteString(col)
		} else if v, ok := d.Var(ref); ok {
			b.WriteString(v)
		} else {
			return "", errors.Errorf("expanding %%%s%%: dangling placeholder %%%s%%", name, ref)
		}
		rest = rest[start+1+end+1:]
	}
}

// placeholders lists the %ref% names appearing in a value, left to right
func placeholders(value string) []string {
	var refs []string
	rest := value
	for {
		start := strings.IndexByte(rest, '%')
		if start < 0 {
			return refs
		}
		end := strings.IndexByte(rest[start+1:], '%')
		if end < 0 {
			return refs
		}
		if end > 0 {
			refs = append(refs, rest[start+1:start+1+end])
		}
		rest = rest[start+1+end+1:]
	}
}

// columnRef reports whether ref names a positional column, e.g. "var3"
func columnRef(ref string) (int, bool) {
	lower := strings.ToLower(ref)
	if !strings.HasPrefix(lower, "var") {
		return 0, false
	}
	n, err := strconv.Atoi(lower[3:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
