package reg

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldInfo is the untyped form of a field, used where the register is only
// known at run time (catalogue browsing, the HTTP API).
type FieldInfo struct {
	Name        string `json:"name"`
	FirstBit    uint   `json:"first_bit"`
	Size        uint   `json:"size"`
	Access      Access `json:"access"`
	Description string `json:"description,omitempty"`
}

// Get extracts the field from a raw register image.
func (f FieldInfo) Get(buf []byte) (Uint128, error) {
	if !f.Access.Readable() {
		return Uint128{}, fmt.Errorf("field %s: %w", f.Name, ErrNotReadable)
	}
	if f.FirstBit+f.Size > uint(len(buf))*8 {
		return Uint128{}, fmt.Errorf("field %s: %w", f.Name, ErrFieldBounds)
	}
	return extract(buf, f.FirstBit, f.Size), nil
}

// Set stores the low Size bits of v into a raw register image.
func (f FieldInfo) Set(buf []byte, v Uint128) error {
	if !f.Access.Writable() {
		return fmt.Errorf("field %s: %w", f.Name, ErrNotWritable)
	}
	if f.FirstBit+f.Size > uint(len(buf))*8 {
		return fmt.Errorf("field %s: %w", f.Name, ErrFieldBounds)
	}
	insert(buf, f.FirstBit, f.Size, v)
	return nil
}

// Entry is a register with its named fields.
type Entry struct {
	Register
	Description string
	Fields      []FieldInfo
}

// Field looks up a field by name, case-insensitively.
func (e Entry) Field(name string) (FieldInfo, bool) {
	for _, f := range e.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// Decode reads every readable field of the entry from buf.
func (e Entry) Decode(buf []byte) map[string]Uint128 {
	out := make(map[string]Uint128, len(e.Fields))
	for _, f := range e.Fields {
		if v, err := f.Get(buf); err == nil {
			out[f.Name] = v
		}
	}
	return out
}

// Catalogue is a read-only set of register descriptors indexed by name.
type Catalogue struct {
	entries []Entry
	byName  map[string]int
}

type yamlField struct {
	Name        string `yaml:"name"`
	FirstBit    uint   `yaml:"first_bit"`
	Size        uint   `yaml:"size"`
	Access      string `yaml:"access"`
	Description string `yaml:"description"`
}

type yamlRegister struct {
	Name        string      `yaml:"name"`
	Base        uint8       `yaml:"base"`
	Sub         uint8       `yaml:"sub"`
	Len         int         `yaml:"len"`
	Access      string      `yaml:"access"`
	Description string      `yaml:"description"`
	Fields      []yamlField `yaml:"fields"`
}

type yamlCatalogue struct {
	Registers []yamlRegister `yaml:"registers"`
}

// LoadCatalogue parses a YAML catalogue and validates every descriptor.
// Fields inherit the register's access mode unless they declare their own.
func LoadCatalogue(r io.Reader) (*Catalogue, error) {
	var doc yamlCatalogue
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse register catalogue: %w", err)
	}

	c := &Catalogue{byName: make(map[string]int, len(doc.Registers))}
	for _, yr := range doc.Registers {
		access, err := ParseAccess(yr.Access)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", yr.Name, err)
		}
		r, err := NewRegister(yr.Name, yr.Base, yr.Sub, yr.Len, access)
		if err != nil {
			return nil, err
		}
		key := strings.ToUpper(yr.Name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("duplicate register %s", yr.Name)
		}

		e := Entry{Register: r, Description: yr.Description}
		for _, yf := range yr.Fields {
			fa := access
			if yf.Access != "" {
				if fa, err = ParseAccess(yf.Access); err != nil {
					return nil, fmt.Errorf("field %s.%s: %w", yr.Name, yf.Name, err)
				}
			}
			if err := checkSpan(r, yf.FirstBit, yf.Size); err != nil {
				return nil, fmt.Errorf("field %s: %w", yf.Name, err)
			}
			e.Fields = append(e.Fields, FieldInfo{
				Name:        yf.Name,
				FirstBit:    yf.FirstBit,
				Size:        yf.Size,
				Access:      fa,
				Description: yf.Description,
			})
		}

		c.byName[key] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Lookup finds a register by name, case-insensitively.
func (c *Catalogue) Lookup(name string) (Entry, bool) {
	i, ok := c.byName[strings.ToUpper(name)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Entries returns the registers ordered by base then sub-address.
func (c *Catalogue) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Base != out[j].Base {
			return out[i].Base < out[j].Base
		}
		return out[i].Sub < out[j].Sub
	})
	return out
}

// Len returns the number of registers in the catalogue.
func (c *Catalogue) Len() int { return len(c.entries) }
