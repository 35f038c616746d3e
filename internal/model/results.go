package model

import "sort"

// Squad is a constraint-satisfying roster. It holds copies of the selected
// candidates and no reference back to the pool it was drawn from.
type Squad struct {
	IDs             []int            `json:"ids"`
	Members         []Candidate      `json:"members"`
	TotalCost       Money            `json:"total_cost"`
	TotalValue      float64          `json:"total_value"`
	BudgetRemaining Money            `json:"budget_remaining"`
	CategoryCounts  map[Category]int `json:"category_counts"`
	GroupCounts     map[int]int      `json:"group_counts"`
}

// NewSquad summarizes members against a budget ceiling.
func NewSquad(members []Candidate, budget Money) Squad {
	ms := make([]Candidate, len(members))
	copy(ms, members)
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })

	s := Squad{
		IDs:            make([]int, 0, len(ms)),
		Members:        ms,
		CategoryCounts: make(map[Category]int, len(Categories)),
		GroupCounts:    make(map[int]int),
	}
	for _, c := range ms {
		s.IDs = append(s.IDs, c.ID)
		s.TotalCost += c.Cost
		s.TotalValue += c.PredictedValue
		s.CategoryCounts[c.Category]++
		s.GroupCounts[c.Group]++
	}
	s.BudgetRemaining = budget - s.TotalCost
	return s
}

func (s Squad) Contains(id int) bool {
	i := sort.SearchInts(s.IDs, id)
	return i < len(s.IDs) && s.IDs[i] == id
}

// Transfer swaps one roster member out for one pool candidate. Category is
// the incoming candidate's; it differs from the outgoing one only when the
// category bounds leave room to rebalance.
type Transfer struct {
	OutID      int      `json:"out_id"`
	InID       int      `json:"in_id"`
	OutName    string   `json:"out_name,omitempty"`
	InName     string   `json:"in_name,omitempty"`
	Category   Category `json:"category"`
	CostDelta  Money    `json:"cost_delta"`
	ValueDelta float64  `json:"value_delta"`
}

// TransferPlan is an ordered list of swaps. An empty plan means "keep the squad".
type TransferPlan struct {
	Transfers  []Transfer `json:"transfers"`
	CostDelta  Money      `json:"cost_delta"`
	ValueDelta float64    `json:"value_delta"`
}

func (p TransferPlan) Len() int {
	return len(p.Transfers)
}

// Apply returns the roster ids after every swap in the plan, sorted ascending.
func (p TransferPlan) Apply(ids []int) []int {
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	for _, t := range p.Transfers {
		delete(out, t.OutID)
		out[t.InID] = true
	}
	res := make([]int, 0, len(out))
	for id := range out {
		res = append(res, id)
	}
	sort.Ints(res)
	return res
}

type CaptainScore struct {
	ID             int     `json:"id"`
	Name           string  `json:"name,omitempty"`
	Rank           int     `json:"rank"`
	Score          float64 `json:"score"`
	FormNorm       float64 `json:"form_norm"`
	FixtureNorm    float64 `json:"fixture_norm"`
	UnderlyingNorm float64 `json:"underlying_norm"`
	Situational    float64 `json:"situational"`
}

type CaptaincyRecommendation struct {
	PrimaryID    int            `json:"primary_id"`
	SecondaryID  int            `json:"secondary_id,omitempty"`
	HasSecondary bool           `json:"has_secondary"`
	Confidence   float64        `json:"confidence"`
	Ranked       []CaptainScore `json:"ranked"`
	Alternates   []CaptainScore `json:"alternates"`
}
