// Package fixtures provides the JSON resources that the test suite submits to the API.
//
// A fixture named "patients" is read from "patients_bundle.json". If a directory was given and
// the file exists there, it wins; otherwise the built-in copy is used.
package fixtures

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	Organization       = "organization"
	OrganizationUpdate = "organization_update"
	Providers          = "providers"
	Patients           = "patients"
	Roster             = "roster"
)

//go:embed bundles/*.json
var builtIn embed.FS

// Loader reads fixtures by name.
type Loader struct {
	dir string
}

// NewLoader returns a Loader that looks in dir before falling back to the built-in fixtures.
// An empty dir means built-in fixtures only.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

func fileName(name string) string {
	return name + "_bundle.json"
}

// Load returns the named fixture as a JSON value.
func (l *Loader) Load(name string) (ldvalue.Value, error) {
	data, source, err := l.read(name)
	if err != nil {
		return ldvalue.Null(), err
	}
	var v ldvalue.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return ldvalue.Null(), fmt.Errorf("fixture %q (%s) is not valid JSON: %w", name, source, err)
	}
	return v, nil
}

func (l *Loader) read(name string) ([]byte, string, error) {
	if l.dir != "" {
		path := filepath.Join(l.dir, fileName(name))
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, path, fmt.Errorf("can't read fixture %q: %w", name, err)
		}
	}
	data, err := builtIn.ReadFile("bundles/" + fileName(name))
	if err != nil {
		return nil, "", fmt.Errorf("unknown fixture %q", name)
	}
	return data, "built-in", nil
}

// Names lists the built-in fixtures.
func Names() []string {
	return []string{Organization, OrganizationUpdate, Providers, Patients, Roster}
}
