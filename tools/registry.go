package tools

import (
	"fmt"

	"github.com/mmoreau/gemchat/models"
)

// Registry is the fixed name -> declaration mapping built once at process
// start. The tool set never changes for the lifetime of the process.
type Registry struct {
	order  []string
	byName map[string]models.FunctionDeclaration
}

// New_Registry builds a registry from declarations, rejecting duplicates and
// nameless or uncallable tools.
func New_Registry(decls ...models.FunctionDeclaration) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]models.FunctionDeclaration, len(decls)),
	}
	for _, decl := range decls {
		if decl.Name == "" {
			return nil, fmt.Errorf("tool declaration has empty name")
		}
		if decl.Callable == nil {
			return nil, fmt.Errorf("tool %q has no callable", decl.Name)
		}
		if _, exists := r.byName[decl.Name]; exists {
			return nil, fmt.Errorf("tool %q already registered", decl.Name)
		}
		r.byName[decl.Name] = decl
		r.order = append(r.order, decl.Name)
	}
	return r, nil
}

// Declarations returns the tool schemas in registration order, as advertised
// to the model on every request.
func (r *Registry) Declarations() []models.FunctionDeclaration {
	decls := make([]models.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.byName[name])
	}
	return decls
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (models.FunctionDeclaration, bool) {
	decl, ok := r.byName[name]
	return decl, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}
