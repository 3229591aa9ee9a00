package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds module definitions keyed by id.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]ModuleDefinition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]ModuleDefinition)}
}

// defaultRegistry is populated by the modules package at init time.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a module to the default registry.
// Panics if the definition is invalid or the id is already registered.
func Register(def ModuleDefinition) {
	defaultRegistry.Register(def)
}

// Register adds a module definition.
// Panics if the definition is invalid or the id is already registered.
func (r *Registry) Register(def ModuleDefinition) {
	if err := r.Add(def); err != nil {
		panic(err)
	}
}

// Add is Register without the panic, for definitions loaded at runtime.
func (r *Registry) Add(def ModuleDefinition) error {
	def, err := normalizeDefinition(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[def.ID]; exists {
		return fmt.Errorf("module already registered: %s", def.ID)
	}
	r.modules[def.ID] = def
	return nil
}

// Get returns a module definition by id.
func (r *Registry) Get(id string) (ModuleDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.modules[id]
	if !ok {
		return ModuleDefinition{}, &ModuleNotFoundError{ID: id}
	}
	return def, nil
}

// List returns summaries of all modules sorted by id.
func (r *Registry) List() []ModuleSummary {
	defs := r.All()
	out := make([]ModuleSummary, len(defs))
	for i, def := range defs {
		out[i] = def.Summary()
	}
	return out
}

// All returns every registered definition sorted by id.
func (r *Registry) All() []ModuleDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ModuleDefinition, 0, len(r.modules))
	for _, def := range r.modules {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// Exportable returns summaries of modules that can be exported.
func (r *Registry) Exportable() []ModuleSummary {
	var out []ModuleSummary
	for _, def := range r.All() {
		if def.Exportable {
			out = append(out, def.Summary())
		}
	}
	return out
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// normalizeDefinition fills defaults and rejects inconsistent definitions.
func normalizeDefinition(def ModuleDefinition) (ModuleDefinition, error) {
	if def.ID == "" {
		return def, fmt.Errorf("module definition without id")
	}
	if def.Name == "" {
		def.Name = def.ID
	}

	seen := make(map[string]bool, len(def.Fields))
	fields := make([]FieldSpec, len(def.Fields))
	for i, f := range def.Fields {
		if f.Name == "" {
			return def, fmt.Errorf("module %s: field %d has no name", def.ID, i)
		}
		if seen[f.Name] {
			return def, fmt.Errorf("module %s: duplicate field %q", def.ID, f.Name)
		}
		seen[f.Name] = true
		if f.Type == "" {
			f.Type = FieldText
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			return def, fmt.Errorf("module %s: select field %q has no options", def.ID, f.Name)
		}
		fields[i] = f
	}
	def.Fields = fields

	for _, key := range def.NaturalKeys {
		if !seen[key] {
			return def, fmt.Errorf("module %s: natural key %q is not a field", def.ID, key)
		}
	}

	if def.RequiresAccount {
		if def.AccountEmailField == "" {
			def.AccountEmailField = "email"
		}
		if !seen[def.AccountEmailField] {
			return def, fmt.Errorf("module %s: account email field %q is not a field", def.ID, def.AccountEmailField)
		}
		if def.AccountRole == "" {
			return def, fmt.Errorf("module %s: accounts required but no role set", def.ID)
		}
	}

	if len(def.ExportFields) == 0 {
		def.ExportFields = make([]ExportField, len(def.Fields))
		for i, f := range def.Fields {
			def.ExportFields[i] = ExportField{Key: f.Name, Label: f.DisplayLabel()}
		}
	}

	return def, nil
}
