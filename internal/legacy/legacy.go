// Package legacy reads the flat-file user store that predates the relational
// one. The file is a JSON document with a top-level "users" array; comments
// and trailing commas are tolerated since the file was maintained by hand.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/jsonc"
)

// Record is one user entry from the flat file. Optional fields are pointers so
// an absent key can fall back to its default.
type Record struct {
	ID                 json.RawMessage `json:"id,omitempty"`
	Username           string          `json:"username"`
	PasswordHash       string          `json:"password_hash"`
	Name               string          `json:"name,omitempty"`
	Email              string          `json:"email,omitempty"`
	Role               string          `json:"role,omitempty"`
	IsDemo             *bool           `json:"is_demo,omitempty"`
	IsVerified         *bool           `json:"is_verified,omitempty"`
	MustChangePassword *bool           `json:"must_change_password,omitempty"`
}

// Valid reports whether the record can ever authenticate.
func (r Record) Valid() bool {
	return r.Username != "" && r.PasswordHash != ""
}

// DisplayName is the record's name, or its username when unnamed.
func (r Record) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Username
}

func (r Record) RoleOrDefault() string {
	if r.Role == "" {
		return "user"
	}
	return r.Role
}

// Demo defaults to true: legacy accounts were demo accounts unless marked otherwise.
func (r Record) Demo() bool {
	return r.IsDemo == nil || *r.IsDemo
}

func (r Record) Verified() bool {
	return r.IsVerified != nil && *r.IsVerified
}

func (r Record) ForcePasswordChange() bool {
	return r.MustChangePassword != nil && *r.MustChangePassword
}

// Data is the decoded flat file. Keys other than "users" are ignored.
type Data struct {
	Users []Record
}

type Loader interface {
	Load(ctx context.Context) (*Data, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*Data, error)

func (f LoaderFunc) Load(ctx context.Context) (*Data, error) { return f(ctx) }

// Static returns a Loader that always yields records.
func Static(records ...Record) Loader {
	return LoaderFunc(func(context.Context) (*Data, error) {
		return &Data{Users: records}, nil
	})
}

// FileLoader re-reads the whole file on every Load so edits take effect
// without a restart.
type FileLoader struct {
	Path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

// Load reads and decodes the file. A missing file is an empty store. Entries
// that do not decode as a Record are skipped with a warning.
func (l *FileLoader) Load(ctx context.Context) (*Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return &Data{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read legacy data %s: %w", l.Path, err)
	}

	return Decode(raw)
}

// Decode parses a legacy document.
func Decode(raw []byte) (*Data, error) {
	var doc struct {
		Users []json.RawMessage `json:"users"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode legacy data: %w", err)
	}

	data := &Data{Users: make([]Record, 0, len(doc.Users))}
	for i, entry := range doc.Users {
		var rec Record
		if err := json.Unmarshal(entry, &rec); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping malformed legacy user record")
			continue
		}
		data.Users = append(data.Users, rec)
	}
	return data, nil
}
