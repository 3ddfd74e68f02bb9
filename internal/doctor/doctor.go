// Package doctor reports how nupush sees the current agent: collection
// classification, credential policies, URI prefixes and located tools.
// Secrets are never printed.
package doctor

import (
	"fmt"
	"io"

	"github.com/majorcontext/nupush/internal/ui"
)

// Section is one block of diagnostic output.
type Section interface {
	Name() string
	Print(w io.Writer) error
}

// Registry holds sections in registration order.
type Registry struct {
	sections []Section
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a section.
func (r *Registry) Register(s Section) {
	r.sections = append(r.sections, s)
}

// Sections returns all registered sections.
func (r *Registry) Sections() []Section {
	return r.sections
}

// Print writes every section to w. A failing section is reported inline and
// does not stop the others.
func (r *Registry) Print(w io.Writer) {
	for _, s := range r.sections {
		ui.Section(w, s.Name())
		if err := s.Print(w); err != nil {
			fmt.Fprintf(w, "%s Error: %v\n", ui.FailTag(), err)
		}
		fmt.Fprintln(w)
	}
}
