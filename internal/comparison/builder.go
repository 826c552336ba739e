package comparison

import (
	"bytes"
	"fmt"
)

// NewDefault returns the starting document of the builder: the given columns and
// a single author-preference section favouring the first EIP.
func NewDefault(meta Meta, eips []int) *Comparison {
	c := &Comparison{
		Meta: meta,
		EIPs: append([]int(nil), eips...),
	}
	preferred := 0
	if len(eips) > 0 {
		preferred = eips[0]
	}
	c.Sections = []Section{&AuthorPreferenceSection{
		PreferredEIP: preferred,
		Strength:     StrengthModerate,
	}}
	return c
}

// shallow copies the envelope and the section slice. Sections themselves are
// shared; they are never mutated in place.
func (c *Comparison) shallow() *Comparison {
	out := &Comparison{
		Meta:     c.Meta,
		EIPs:     append([]int(nil), c.EIPs...),
		Sections: append([]Section(nil), c.Sections...),
		Extras:   c.Extras,
	}
	return out
}

// WithMeta returns a copy of c with meta replaced.
func (c *Comparison) WithMeta(meta Meta) *Comparison {
	out := c.shallow()
	out.Meta = meta
	return out
}

// WithEIPs returns a copy of c with new columns.
func (c *Comparison) WithEIPs(eips []int) *Comparison {
	out := c.shallow()
	out.EIPs = append([]int(nil), eips...)
	return out
}

// WithSection returns a copy of c with s appended.
func (c *Comparison) WithSection(s Section) (*Comparison, error) {
	return c.WithSectionAt(len(c.Sections), s)
}

// WithSectionAt returns a copy of c with s inserted before index.
func (c *Comparison) WithSectionAt(index int, s Section) (*Comparison, error) {
	if s.Kind() == KindForkcastFacts {
		return nil, ErrReadOnlySection
	}
	if index < 0 || index > len(c.Sections) {
		return nil, fmt.Errorf("%w: %d", ErrSectionIndex, index)
	}
	out := c.shallow()
	out.Sections = append(out.Sections[:index], append([]Section{s}, c.Sections[index:]...)...)
	return out, nil
}

// ReplaceSection returns a copy of c with the section at index replaced.
func (c *Comparison) ReplaceSection(index int, s Section) (*Comparison, error) {
	if index < 0 || index >= len(c.Sections) {
		return nil, fmt.Errorf("%w: %d", ErrSectionIndex, index)
	}
	if c.Sections[index].Kind() == KindForkcastFacts || s.Kind() == KindForkcastFacts {
		return nil, ErrReadOnlySection
	}
	out := c.shallow()
	out.Sections[index] = s
	return out, nil
}

// WithoutSection returns a copy of c with the section at index removed.
// Facts sections may be removed; they just cannot be edited.
func (c *Comparison) WithoutSection(index int) (*Comparison, error) {
	if index < 0 || index >= len(c.Sections) {
		return nil, fmt.Errorf("%w: %d", ErrSectionIndex, index)
	}
	out := c.shallow()
	out.Sections = append(out.Sections[:index], out.Sections[index+1:]...)
	return out, nil
}

// MoveSection returns a copy of c with the section at from moved to position to.
func (c *Comparison) MoveSection(from, to int) (*Comparison, error) {
	n := len(c.Sections)
	if from < 0 || from >= n {
		return nil, fmt.Errorf("%w: %d", ErrSectionIndex, from)
	}
	if to < 0 || to >= n {
		return nil, fmt.Errorf("%w: %d", ErrSectionIndex, to)
	}
	out := c.shallow()
	s := out.Sections[from]
	out.Sections = append(out.Sections[:from], out.Sections[from+1:]...)
	out.Sections = append(out.Sections[:to], append([]Section{s}, out.Sections[to:]...)...)
	return out, nil
}

// WithFacts returns a copy of c with a forkcast-facts section for eip appended.
// This is the only way facts sections enter a document.
func (c *Comparison) WithFacts(eip int, data FactsData) *Comparison {
	out := c.shallow()
	out.Sections = append(out.Sections, &ForkcastFactsSection{
		Source: ForkcastSource,
		EIPID:  eip,
		Data:   data,
	})
	return out
}

// WithResolvedFacts returns a copy of c where the facts section at index carries
// data. Used by loaders after looking the EIP up.
func (c *Comparison) WithResolvedFacts(index int, data FactsData) (*Comparison, error) {
	if index < 0 || index >= len(c.Sections) {
		return nil, fmt.Errorf("%w: %d", ErrSectionIndex, index)
	}
	facts, ok := c.Sections[index].(*ForkcastFactsSection)
	if !ok {
		return nil, fmt.Errorf("section %d is %s, not %s", index, c.Sections[index].Kind(), KindForkcastFacts)
	}
	resolved := *facts
	resolved.Data = data
	out := c.shallow()
	out.Sections[index] = &resolved
	return out, nil
}

// Clone returns a deep copy of c.
func (c *Comparison) Clone() (*Comparison, error) {
	data, err := Marshal(c)
	if err != nil {
		return nil, err
	}
	out, err := decode(data)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Equal reports whether a and b encode to the same canonical JSON.
func Equal(a, b *Comparison) bool {
	if a == nil || b == nil {
		return a == b
	}
	ja, err := Marshal(a)
	if err != nil {
		return false
	}
	jb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// AuthorPreferences returns the author-preference sections with their indexes.
func (c *Comparison) AuthorPreferences() []IndexedSection[*AuthorPreferenceSection] {
	return sectionsOf[*AuthorPreferenceSection](c)
}

// Facts returns the forkcast-facts sections with their indexes.
func (c *Comparison) Facts() []IndexedSection[*ForkcastFactsSection] {
	return sectionsOf[*ForkcastFactsSection](c)
}

// IndexedSection pairs a section with its position in the document.
type IndexedSection[T Section] struct {
	Index   int
	Section T
}

func sectionsOf[T Section](c *Comparison) []IndexedSection[T] {
	var out []IndexedSection[T]
	for i, s := range c.Sections {
		if typed, ok := s.(T); ok {
			out = append(out, IndexedSection[T]{Index: i, Section: typed})
		}
	}
	return out
}
