// Package eips holds the read-only EIP reference dataset and fork metadata
// that forkcast-facts sections are resolved against.
package eips

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"forkcast/api/internal/comparison"
)

// Impact is a short assessment attached to a stakeholder or north star.
type Impact struct {
	Impact      string `json:"impact,omitempty"`
	Description string `json:"description"`
}

// ForkRelationship links an EIP to a network upgrade.
type ForkRelationship struct {
	ForkName string `json:"forkName"`
	Status   string `json:"status"`
	Layer    string `json:"layer,omitempty"`
}

// Record is one EIP in the reference dataset.
type Record struct {
	ID                 int                `json:"id"`
	Title              string             `json:"title"`
	Status             string             `json:"status"`
	Description        string             `json:"description"`
	Author             string             `json:"author"`
	Type               string             `json:"type"`
	Category           string             `json:"category,omitempty"`
	Created            string             `json:"createdDate"`
	DiscussionLink     string             `json:"discussionLink,omitempty"`
	Layman             string             `json:"laymanDescription,omitempty"`
	Benefits           []string           `json:"benefits,omitempty"`
	Tradeoffs          []string           `json:"tradeoffs,omitempty"`
	StakeholderImpacts map[string]Impact  `json:"stakeholderImpacts,omitempty"`
	NorthStarAlignment map[string]Impact  `json:"northStarAlignment,omitempty"`
	ForkRelationships  []ForkRelationship `json:"forkRelationships,omitempty"`
}

// Fork is a named network upgrade.
type Fork struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	ActivationDate string `json:"activationDate,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Dataset is an immutable index over EIP records and forks.
type Dataset struct {
	byID    map[int]Record
	ordered []Record
	forks   []Fork
}

//go:embed data/eips.json data/forks.json
var dataFS embed.FS

var (
	defaultOnce    sync.Once
	defaultDataset *Dataset
)

// Default returns the dataset bundled with the binary.
func Default() *Dataset {
	defaultOnce.Do(func() {
		eipsFile, err := dataFS.Open("data/eips.json")
		if err != nil {
			panic(fmt.Sprintf("eips: bundled dataset missing: %v", err))
		}
		defer eipsFile.Close()
		forksFile, err := dataFS.Open("data/forks.json")
		if err != nil {
			panic(fmt.Sprintf("eips: bundled forks missing: %v", err))
		}
		defer forksFile.Close()
		ds, err := Load(eipsFile, forksFile)
		if err != nil {
			panic(fmt.Sprintf("eips: bundled dataset invalid: %v", err))
		}
		defaultDataset = ds
	})
	return defaultDataset
}

// Load reads an eips.json array and an optional forks.json array.
func Load(eipsJSON io.Reader, forksJSON io.Reader) (*Dataset, error) {
	var records []Record
	if err := json.NewDecoder(eipsJSON).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode eips: %w", err)
	}
	var forks []Fork
	if forksJSON != nil {
		if err := json.NewDecoder(forksJSON).Decode(&forks); err != nil {
			return nil, fmt.Errorf("decode forks: %w", err)
		}
	}
	return New(records, forks)
}

// LoadFile reads the dataset from disk. forksPath may be empty.
func LoadFile(eipsPath, forksPath string) (*Dataset, error) {
	eipsFile, err := os.Open(eipsPath)
	if err != nil {
		return nil, fmt.Errorf("open eips dataset: %w", err)
	}
	defer eipsFile.Close()

	var forksReader io.Reader
	if forksPath != "" {
		forksFile, err := os.Open(forksPath)
		if err != nil {
			return nil, fmt.Errorf("open forks dataset: %w", err)
		}
		defer forksFile.Close()
		forksReader = forksFile
	}
	return Load(eipsFile, forksReader)
}

// New indexes records. Duplicate ids are rejected.
func New(records []Record, forks []Fork) (*Dataset, error) {
	ds := &Dataset{
		byID:    make(map[int]Record, len(records)),
		ordered: make([]Record, 0, len(records)),
		forks:   append([]Fork(nil), forks...),
	}
	for _, r := range records {
		if r.ID <= 0 {
			return nil, fmt.Errorf("eip record %q has invalid id %d", r.Title, r.ID)
		}
		if _, dup := ds.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate eip record %d", r.ID)
		}
		ds.byID[r.ID] = r
		ds.ordered = append(ds.ordered, r)
	}
	sort.Slice(ds.ordered, func(i, j int) bool { return ds.ordered[i].ID < ds.ordered[j].ID })
	return ds, nil
}

// Lookup returns the record for id.
func (d *Dataset) Lookup(id int) (Record, bool) {
	r, ok := d.byID[id]
	return r, ok
}

// All returns every record ordered by id. The slice is a copy.
func (d *Dataset) All() []Record {
	return append([]Record(nil), d.ordered...)
}

// Len is the number of records.
func (d *Dataset) Len() int {
	return len(d.ordered)
}

// Forks returns the fork list in dataset order.
func (d *Dataset) Forks() []Fork {
	return append([]Fork(nil), d.forks...)
}

// Fork looks a fork up by case-insensitive name.
func (d *Dataset) Fork(name string) (Fork, bool) {
	for _, f := range d.forks {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Fork{}, false
}

// InFork returns the records related to the named fork, ordered by id.
func (d *Dataset) InFork(name string) []Record {
	var out []Record
	for _, r := range d.ordered {
		for _, rel := range r.ForkRelationships {
			if strings.EqualFold(rel.ForkName, name) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Facts projects the record for id into a forkcast-facts payload.
func (d *Dataset) Facts(id int) (comparison.FactsData, bool) {
	r, ok := d.byID[id]
	if !ok {
		return comparison.FactsData{}, false
	}
	return r.Facts(), true
}

// Facts projects r into a forkcast-facts payload.
func (r Record) Facts() comparison.FactsData {
	data := comparison.FactsData{
		Title:              r.Title,
		Description:        r.Description,
		Layman:             r.Layman,
		Benefits:           append([]string(nil), r.Benefits...),
		Tradeoffs:          append([]string(nil), r.Tradeoffs...),
		StakeholderImpacts: descriptions(r.StakeholderImpacts),
		NorthStarAlignment: descriptions(r.NorthStarAlignment),
	}
	for _, rel := range r.ForkRelationships {
		data.ForkRelationships = append(data.ForkRelationships, comparison.ForkRelationship{
			Fork:   rel.ForkName,
			Status: rel.Status,
			Layer:  rel.Layer,
		})
	}
	return data
}

func descriptions(m map[string]Impact) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v.Impact != "" {
			out[k] = v.Impact + ": " + v.Description
			continue
		}
		out[k] = v.Description
	}
	return out
}

// Label is the display label "EIP-<id>".
func Label(id int) string {
	return fmt.Sprintf("EIP-%d", id)
}
