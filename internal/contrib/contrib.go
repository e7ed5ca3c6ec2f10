// Package contrib collects the event variants shipped with probewire.
package contrib

import (
	"fmt"

	"github.com/gyaneshwarpardhi/probewire/internal/contrib/inventory"
	"github.com/gyaneshwarpardhi/probewire/internal/contrib/osquery"
	"github.com/gyaneshwarpardhi/probewire/internal/contrib/santa"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
)

// Options configures the bundled variants.
type Options struct {
	InventoryBaseURL string
}

// Variants returns every bundled variant.
func Variants(opts Options) []event.Variant {
	var out []event.Variant
	out = append(out, osquery.Variants()...)
	out = append(out, inventory.Variant(opts.InventoryBaseURL))
	out = append(out, santa.Variants()...)
	return out
}

// RegisterAll registers every bundled variant with reg.
func RegisterAll(reg *event.Registry, opts Options) error {
	for _, v := range Variants(opts) {
		if err := reg.Register(v); err != nil {
			return fmt.Errorf("contrib: %w", err)
		}
	}
	return nil
}
