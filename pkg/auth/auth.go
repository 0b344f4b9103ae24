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

// Package auth resolves provider credentials from environment variables.
//
// The value of a credential variable is a small literal expression in one of
// three shapes: a string-keyed mapping (extra request headers), a two-element
// pair (basic auth), or nothing at all. The parser accepts only literal
// containers of strings. It never evaluates anything.
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// 🔐 Credential is one of HeaderAuth, BasicAuth or NoAuth
type Credential interface {
	// Apply installs the credential on an outgoing request
	Apply(req *http.Request)
}

// 📋 HeaderAuth carries extra request headers, e.g. {'Authorization': 'token X'}
type HeaderAuth struct {
	Headers map[string]string
}

func (a HeaderAuth) Apply(req *http.Request) {
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
}

// 👤 BasicAuth carries a user/secret pair, e.g. ('user', 'pass')
type BasicAuth struct {
	User   string
	Secret string
}

func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.User, a.Secret)
}

// 🚫 NoAuth is the credential for anonymous access
type NoAuth struct{}

func (NoAuth) Apply(*http.Request) {}

// ConfigError reports a credential variable that is set but malformed.
// A malformed value is never downgraded to NoAuth.
type ConfigError struct {
	Var    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("credential variable %s: %s", e.Var, e.Reason)
}

// 🎯 Resolve evaluates the named environment variable into a Credential.
// An unset or empty variable resolves to NoAuth.
func Resolve(name string) (Credential, error) {
	return Parse(name, os.Getenv(name))
}

// Parse parses a credential literal. The variable name is only used for
// error reporting.
func Parse(name, value string) (Credential, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "None" {
		return NoAuth{}, nil
	}

	s := &scanner{src: value, name: name}
	var cred Credential
	var err error
	switch {
	case s.peek() == '{':
		cred, err = s.mapping()
	case s.peek() == '(':
		cred, err = s.pair()
	default:
		return nil, &ConfigError{Var: name, Reason: fmt.Sprintf("unrecognized literal %q", value)}
	}
	if err != nil {
		return nil, err
	}
	s.space()
	if !s.done() {
		return nil, &ConfigError{Var: name, Reason: fmt.Sprintf("trailing text after literal at offset %d", s.pos)}
	}
	return cred, nil
}

// scanner is a restricted literal reader. It understands quoted strings,
// mapping literals and pair literals, nothing else.
type scanner struct {
	src  string
	name string
	pos  int
}

func (s *scanner) fail(format string, args ...any) error {
	return &ConfigError{Var: s.name, Reason: fmt.Sprintf(format, args...)}
}

func (s *scanner) done() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) peek() byte {
	if s.done() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) space() {
	for !s.done() && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
		s.pos++
	}
}

func (s *scanner) expect(c byte) error {
	s.space()
	if s.peek() != c {
		return s.fail("expected %q at offset %d", string(c), s.pos)
	}
	s.pos++
	return nil
}

// str reads a single- or double-quoted string with backslash escapes
func (s *scanner) str() (string, error) {
	s.space()
	quote := s.peek()
	if quote != '\'' && quote != '"' {
		return "", s.fail("expected quoted string at offset %d", s.pos)
	}
	s.pos++
	var b strings.Builder
	for !s.done() {
		c := s.src[s.pos]
		s.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\\':
			if s.done() {
				return "", s.fail("unterminated escape at offset %d", s.pos)
			}
			b.WriteByte(s.src[s.pos])
			s.pos++
		default:
			b.WriteByte(c)
		}
	}
	return "", s.fail("unterminated string at offset %d", s.pos)
}

// mapping reads {'key': 'value', ...} into a HeaderAuth
func (s *scanner) mapping() (Credential, error) {
	if err := s.expect('{'); err != nil {
		return nil, err
	}
	headers := map[string]string{}
	s.space()
	if s.peek() == '}' {
		s.pos++
		return HeaderAuth{Headers: headers}, nil
	}
	for {
		key, err := s.str()
		if err != nil {
			return nil, err
		}
		if err := s.expect(':'); err != nil {
			return nil, err
		}
		val, err := s.str()
		if err != nil {
			return nil, err
		}
		headers[key] = val
		s.space()
		switch s.peek() {
		case ',':
			s.pos++
		case '}':
			s.pos++
			return HeaderAuth{Headers: headers}, nil
		default:
			return nil, s.fail("expected ',' or '}' at offset %d", s.pos)
		}
	}
}

// pair reads ('user', 'secret') into a BasicAuth. Exactly two elements.
func (s *scanner) pair() (Credential, error) {
	if err := s.expect('('); err != nil {
		return nil, err
	}
	user, err := s.str()
	if err != nil {
		return nil, err
	}
	if err := s.expect(','); err != nil {
		return nil, err
	}
	secret, err := s.str()
	if err != nil {
		return nil, err
	}
	s.space()
	// A trailing comma before ')' is fine, a third element is not.
	if s.peek() == ',' {
		s.pos++
		s.space()
	}
	if err := s.expect(')'); err != nil {
		return nil, err
	}
	return BasicAuth{User: user, Secret: secret}, nil
}

// 🚌 Transport wraps a RoundTripper so every request carries the credential.
// Used for clients that build their own requests, like the go-github client.
func Transport(cred Credential, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &credTransport{cred: cred, base: base}
}

type credTransport struct {
	cred Credential
	base http.RoundTripper
}

func (t *credTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	t.cred.Apply(clone)
	return t.base.RoundTrip(clone)
}
