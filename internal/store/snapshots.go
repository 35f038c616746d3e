package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fpl-squad-mcp/internal/captaincy"
	"fpl-squad-mcp/internal/model"
)

func PoolPath(gw int) string {
	return fmt.Sprintf("pool/gw/%d.json", gw)
}

func SquadPath(name string) string {
	return fmt.Sprintf("squad/%s.json", name)
}

func CaptaincyPath(name string) string {
	return fmt.Sprintf("captaincy/%s.json", name)
}

func ResultPath(kind, name string) string {
	return fmt.Sprintf("results/%s/%s.json", kind, name)
}

// ResolveGW returns gw when positive, otherwise the current event from
// game/game.json.
func (s *JSONStore) ResolveGW(gw int) (int, error) {
	if gw > 0 {
		return gw, nil
	}
	var game struct {
		CurrentEvent int `json:"current_event"`
	}
	if err := s.ReadJSON("game/game.json", &game); err != nil {
		return 0, fmt.Errorf("missing game meta: %w", err)
	}
	if game.CurrentEvent == 0 {
		return 0, fmt.Errorf("current_event missing in game.json")
	}
	return game.CurrentEvent, nil
}

// poolRecord accepts both the normalized shape (category, group, cost,
// availability) and FPL bootstrap names (element_type, team, now_cost in
// tenths, status codes, ep_next as the predicted value).
type poolRecord struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	WebName        string          `json:"web_name"`
	Category       *model.Category `json:"category"`
	ElementType    int             `json:"element_type"`
	Group          int             `json:"group"`
	Team           int             `json:"team"`
	Cost           *model.Money    `json:"cost"`
	NowCost        *int            `json:"now_cost"`
	PredictedValue *float64        `json:"predicted_value"`
	EPNext         json.RawMessage `json:"ep_next"`
	Availability   string          `json:"availability"`
	Status         string          `json:"status"`
}

func (r poolRecord) candidate() (model.Candidate, error) {
	c := model.Candidate{ID: r.ID, Name: r.Name, Group: r.Group}
	if c.Name == "" {
		c.Name = r.WebName
	}
	if c.Group == 0 {
		c.Group = r.Team
	}
	switch {
	case r.Category != nil:
		c.Category = *r.Category
	case r.ElementType != 0:
		c.Category = model.Category(r.ElementType)
	}
	switch {
	case r.Cost != nil:
		c.Cost = *r.Cost
	case r.NowCost != nil:
		c.Cost = model.MoneyFromTenths(*r.NowCost)
	default:
		return c, fmt.Errorf("candidate %d: cost missing", r.ID)
	}
	switch {
	case r.PredictedValue != nil:
		c.PredictedValue = *r.PredictedValue
	case len(r.EPNext) > 0:
		v, err := epNext(r.EPNext)
		if err != nil {
			return c, fmt.Errorf("candidate %d: %w", r.ID, err)
		}
		c.PredictedValue = v
	default:
		return c, fmt.Errorf("candidate %d: predicted_value missing", r.ID)
	}
	status := r.Availability
	if status == "" {
		status = r.Status
	}
	av, err := model.ParseAvailability(status)
	if err != nil {
		return c, fmt.Errorf("candidate %d: %w", r.ID, err)
	}
	c.Availability = av
	return c, nil
}

// epNext reads FPL's ep_next, a quoted decimal or null. Null means no
// projection and scores zero.
func epNext(raw json.RawMessage) (float64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ep_next %q: %w", s, err)
	}
	return v, nil
}

// DecodePool reads a pool document: {"candidates": [...]}, {"elements": [...]}
// or a bare list.
func DecodePool(b []byte) (*model.Pool, error) {
	var recs []poolRecord
	if isArray(b) {
		if err := json.Unmarshal(b, &recs); err != nil {
			return nil, err
		}
	} else {
		var doc struct {
			Candidates []poolRecord `json:"candidates"`
			Elements   []poolRecord `json:"elements"`
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, err
		}
		recs = doc.Candidates
		if len(recs) == 0 {
			recs = doc.Elements
		}
	}
	cs := make([]model.Candidate, 0, len(recs))
	for _, r := range recs {
		c, err := r.candidate()
		if err != nil {
			return nil, model.InvalidInput("pool", "%v", err)
		}
		cs = append(cs, c)
	}
	return model.NewPool(cs)
}

// LoadPool reads the candidate pool for gw (0 = current gameweek).
func (s *JSONStore) LoadPool(gw int) (*model.Pool, int, error) {
	gw, err := s.ResolveGW(gw)
	if err != nil {
		return nil, 0, err
	}
	b, err := s.ReadRaw(PoolPath(gw))
	if err != nil {
		return nil, gw, err
	}
	pool, err := DecodePool(b)
	if err != nil {
		return nil, gw, fmt.Errorf("pool gw %d: %w", gw, err)
	}
	return pool, gw, nil
}

func (s *JSONStore) LoadSquad(name string) ([]int, error) {
	b, err := s.ReadRaw(SquadPath(name))
	if err != nil {
		return nil, err
	}
	if isArray(b) {
		var ids []int
		if err := json.Unmarshal(b, &ids); err != nil {
			return nil, fmt.Errorf("squad %s: %w", name, err)
		}
		return ids, nil
	}
	var doc struct {
		IDs []int `json:"ids"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("squad %s: %w", name, err)
	}
	return doc.IDs, nil
}

func (s *JSONStore) SaveSquad(name string, squad model.Squad) error {
	return s.WriteJSON(SquadPath(name), squad)
}

func (s *JSONStore) LoadCaptaincy(name string) ([]captaincy.Member, error) {
	b, err := s.ReadRaw(CaptaincyPath(name))
	if err != nil {
		return nil, err
	}
	if isArray(b) {
		var ms []captaincy.Member
		if err := json.Unmarshal(b, &ms); err != nil {
			return nil, fmt.Errorf("captaincy %s: %w", name, err)
		}
		return ms, nil
	}
	var doc struct {
		Members []captaincy.Member `json:"members"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("captaincy %s: %w", name, err)
	}
	return doc.Members, nil
}

func isArray(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '['
}
