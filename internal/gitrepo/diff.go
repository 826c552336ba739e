package gitrepo

import (
	"bytes"
	"fmt"
	"sort"

	"forkcast/api/internal/comparison"
)

// Change is one difference between two versions of a draft.
type Change struct {
	Field  string `json:"field"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Diff lists what changed from one version to the next: meta fields, the
// EIP list, and each section position by kind and content.
func Diff(from, to *comparison.Comparison) []Change {
	type pair struct {
		field  string
		before string
		after  string
	}
	pairs := []pair{
		{field: "meta.title", before: from.Meta.Title, after: to.Meta.Title},
		{field: "meta.author", before: from.Meta.Author, after: to.Meta.Author},
		{field: "meta.created", before: from.Meta.Created, after: to.Meta.Created},
		{field: "meta.description", before: from.Meta.Description, after: to.Meta.Description},
		{field: "eips", before: fmt.Sprint(from.EIPs), after: fmt.Sprint(to.EIPs)},
	}
	result := make([]Change, 0)
	for _, p := range pairs {
		if p.before != p.after {
			result = append(result, Change{Field: p.field, Before: p.before, After: p.after})
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Field < result[j].Field })

	n := len(from.Sections)
	if len(to.Sections) > n {
		n = len(to.Sections)
	}
	for i := 0; i < n; i++ {
		field := fmt.Sprintf("sections[%d]", i)
		switch {
		case i >= len(from.Sections):
			result = append(result, Change{Field: field, After: string(to.Sections[i].Kind())})
		case i >= len(to.Sections):
			result = append(result, Change{Field: field, Before: string(from.Sections[i].Kind())})
		case !sameSection(from.Sections[i], to.Sections[i]):
			result = append(result, Change{
				Field:  field,
				Before: string(from.Sections[i].Kind()),
				After:  string(to.Sections[i].Kind()),
			})
		}
	}
	return result
}

// HasChanges reports whether Diff would be non-empty.
func HasChanges(from, to *comparison.Comparison) bool {
	return len(Diff(from, to)) > 0
}

func sameSection(a, b comparison.Section) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	ja, errA := comparison.MarshalSection(a)
	jb, errB := comparison.MarshalSection(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
