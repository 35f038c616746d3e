package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Category is the roster role of a candidate. Values match FPL element_type.
type Category int

const (
	GK  Category = 1
	DEF Category = 2
	MID Category = 3
	FWD Category = 4
)

// Categories lists every known category in ascending order.
var Categories = []Category{GK, DEF, MID, FWD}

func (c Category) Valid() bool {
	return c >= GK && c <= FWD
}

func (c Category) String() string {
	switch c {
	case GK:
		return "GK"
	case DEF:
		return "DEF"
	case MID:
		return "MID"
	case FWD:
		return "FWD"
	default:
		return "UNK"
	}
}

// ParseCategory accepts labels (GK, GKP, DEF, MID, FWD) or element_type numbers.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	switch s {
	case "GK", "GKP", "GOALKEEPER":
		return GK, nil
	case "DEF", "DEFENDER":
		return DEF, nil
	case "MID", "MIDFIELDER":
		return MID, nil
	case "FWD", "FORWARD":
		return FWD, nil
	}
	n, err := strconv.Atoi(s)
	if err == nil && Category(n).Valid() {
		return Category(n), nil
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts "MID" as well as a bare element_type number.
func (c *Category) UnmarshalJSON(b []byte) error {
	return c.UnmarshalText(bytes.Trim(bytes.TrimSpace(b), `"`))
}

type Availability string

const (
	Available   Availability = "available"
	Doubtful    Availability = "doubtful"
	Unavailable Availability = "unavailable"
)

// ParseAvailability maps long names and FPL status codes (a, d, i, s, u, n).
// An empty status is treated as available.
func ParseAvailability(s string) (Availability, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "a", "available":
		return Available, nil
	case "d", "doubtful":
		return Doubtful, nil
	case "i", "s", "u", "n", "unavailable", "injured", "suspended":
		return Unavailable, nil
	default:
		return "", fmt.Errorf("unknown availability %q", s)
	}
}

// Selectable reports whether a candidate with this status may enter a roster.
func (a Availability) Selectable() bool {
	return a != Unavailable
}

type Candidate struct {
	ID             int          `json:"id"`
	Name           string       `json:"name,omitempty"`
	Category       Category     `json:"category"`
	Group          int          `json:"group"`
	Cost           Money        `json:"cost"`
	PredictedValue float64      `json:"predicted_value"`
	Availability   Availability `json:"availability"`
}

// Pool is an immutable snapshot of selectable candidates, ordered by id.
type Pool struct {
	candidates []Candidate
	index      map[int]int
}

// NewPool copies and validates the snapshot. The caller's slice is never retained.
func NewPool(candidates []Candidate) (*Pool, error) {
	cs := make([]Candidate, len(candidates))
	copy(cs, candidates)
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })

	index := make(map[int]int, len(cs))
	for i := range cs {
		c := &cs[i]
		if _, dup := index[c.ID]; dup {
			return nil, InvalidInput("pool", "duplicate candidate id %d", c.ID)
		}
		if !c.Category.Valid() {
			return nil, InvalidInput("pool", "candidate %d has unknown category %d", c.ID, int(c.Category))
		}
		if c.Group <= 0 {
			return nil, InvalidInput("pool", "candidate %d has invalid group %d", c.ID, c.Group)
		}
		if c.Cost < 0 {
			return nil, InvalidInput("pool", "candidate %d has negative cost %s", c.ID, c.Cost)
		}
		if math.IsNaN(c.PredictedValue) || math.IsInf(c.PredictedValue, 0) {
			return nil, InvalidInput("pool", "candidate %d has non-finite predicted value", c.ID)
		}
		av, err := ParseAvailability(string(c.Availability))
		if err != nil {
			return nil, InvalidInput("pool", "candidate %d: %v", c.ID, err)
		}
		c.Availability = av
		index[c.ID] = i
	}
	return &Pool{candidates: cs, index: index}, nil
}

func (p *Pool) Len() int {
	return len(p.candidates)
}

// Candidates returns a copy of the snapshot in ascending id order.
func (p *Pool) Candidates() []Candidate {
	out := make([]Candidate, len(p.candidates))
	copy(out, p.candidates)
	return out
}

func (p *Pool) Lookup(id int) (Candidate, bool) {
	i, ok := p.index[id]
	if !ok {
		return Candidate{}, false
	}
	return p.candidates[i], true
}

// Resolve looks up every id, failing on the first unknown one.
func (p *Pool) Resolve(ids []int) ([]Candidate, error) {
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		c, ok := p.Lookup(id)
		if !ok {
			return nil, InvalidInput("selection", "candidate %d is not in the pool", id)
		}
		out = append(out, c)
	}
	return out, nil
}
