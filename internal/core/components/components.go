// Package components holds the stock component types every project gets.
package components

import (
	"github.com/zeusync/zengine/internal/core/registry"
)

// Register adds the stock components under their type names.
func Register(r *registry.Registry) error {
	regs := []func(*registry.Registry) error{
		func(r *registry.Registry) error { return registry.RegisterComponent[Camera](r, "Camera") },
		func(r *registry.Registry) error {
			return registry.RegisterComponent[Light](r, "Light",
				registry.WithFieldPredicate("spotAngle", isSpot),
				registry.WithFieldPredicate("range", hasRange))
		},
		func(r *registry.Registry) error { return registry.RegisterComponent[MeshRenderer](r, "MeshRenderer") },
		func(r *registry.Registry) error { return registry.RegisterComponent[Spinner](r, "Spinner") },
		func(r *registry.Registry) error { return registry.RegisterComponent[Follow](r, "Follow") },
	}
	for _, reg := range regs {
		if err := reg(r); err != nil {
			return err
		}
	}
	return nil
}
