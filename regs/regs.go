// Package regs is the DW3000 register map.
//
// The complete map ships as an embedded YAML catalogue for run-time lookup.
// Registers the driver touches are also declared as tag types with typed
// fields, so field/register mismatches in driver code fail to compile.
package regs

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/linht/uwb-manager/reg"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

var (
	defaultOnce sync.Once
	defaultCat  *reg.Catalogue
	defaultErr  error
)

// Default returns the embedded catalogue, parsed on first use.
func Default() (*reg.Catalogue, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = reg.LoadCatalogue(bytes.NewReader(catalogueYAML))
	})
	return defaultCat, defaultErr
}

// Load reads a catalogue from path, or returns the embedded one when path is
// empty.
func Load(path string) (*reg.Catalogue, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open register catalogue: %w", err)
	}
	defer f.Close()
	return reg.LoadCatalogue(f)
}

func def(name string, base, sub uint8, length int, access reg.Access) reg.Register {
	return reg.Register{Name: name, Base: base, Sub: sub, Len: length, Access: access}
}
