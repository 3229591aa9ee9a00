// Package modules registers the built-in module catalog with the core
// registry. Import it for side effects:
//
//	import _ "github.com/JonMunkholm/schoolbulk/internal/core/modules"
package modules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

//go:embed catalog.yaml
var catalog []byte

func init() {
	defs, err := LoadCatalog(bytes.NewReader(catalog))
	if err != nil {
		panic(fmt.Sprintf("modules: embedded catalog: %v", err))
	}
	for _, def := range defs {
		core.Register(def)
	}
}

// LoadCatalog decodes a YAML list of module definitions. Unknown keys are
// rejected so a typo in the catalog fails loudly instead of dropping a field.
func LoadCatalog(r io.Reader) ([]core.ModuleDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs []core.ModuleDefinition
	if err := dec.Decode(&defs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return defs, nil
}

// Install adds every definition to reg, stopping at the first invalid one.
func Install(reg *core.Registry, defs []core.ModuleDefinition) error {
	for _, def := range defs {
		if err := reg.Add(def); err != nil {
			return err
		}
	}
	return nil
}

// InstallFile loads the catalog at path into reg.
func InstallFile(reg *core.Registry, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	defs, err := LoadCatalog(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := Install(reg, defs); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return len(defs), nil
}
