package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"fpl-squad-mcp/internal/advisor"
	"fpl-squad-mcp/internal/captaincy"
	"fpl-squad-mcp/internal/config"
	"fpl-squad-mcp/internal/model"
)

// ---- shared test helpers ----

// writeJSON marshals v to JSON and writes it to path, creating parent dirs.
func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeGameJSON writes game/game.json declaring the given current event.
func writeGameJSON(t *testing.T, dir string, currentEvent int) {
	t.Helper()
	writeJSON(t, filepath.Join(dir, "game", "game.json"), map[string]any{"current_event": currentEvent})
}

// writeFullPool writes a bootstrap-style pool for gw: per category, ids
// 100*et+1.. with value falling as the id rises. Every candidate is on its
// own club and costs 4.0, so the standard 2/5/5/3 squad at 100.0 is simply
// the top of each category.
func writeFullPool(t *testing.T, dir string, gw int) {
	t.Helper()
	counts := map[int]int{1: 3, 2: 7, 3: 7, 4: 4}
	var elements []any
	for et := 1; et <= 4; et++ {
		for i := 1; i <= counts[et]; i++ {
			id := 100*et + i
			elements = append(elements, map[string]any{
				"id":              id,
				"web_name":        fmt.Sprintf("P%d", id),
				"element_type":    et,
				"team":            id,
				"now_cost":        40,
				"predicted_value": float64(20 - i),
				"status":          "a",
			})
		}
	}
	writeJSON(t, filepath.Join(dir, "pool", "gw", fmt.Sprintf("%d.json", gw)), map[string]any{"elements": elements})
}

// topSquad is the optimum of writeFullPool under the default rules.
var topSquad = []int{101, 102, 201, 202, 203, 204, 205, 301, 302, 303, 304, 305, 401, 402, 403}

func tmpAdvisor(t *testing.T) (string, *advisor.Advisor) {
	t.Helper()
	dir := t.TempDir()
	writeGameJSON(t, dir, 12)
	writeFullPool(t, dir, 12)
	cfg := config.Default()
	cfg.DataRoot = dir
	adv, err := advisor.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return dir, adv
}

// ---- TestBuildOptimizeSquad ----

func TestBuildOptimizeSquad(t *testing.T) {
	t.Run("DefaultRules", func(t *testing.T) {
		_, adv := tmpAdvisor(t)
		b, err := buildOptimizeSquad(context.Background(), adv, OptimizeArgs{SaveAs: "top"})
		if err != nil {
			t.Fatal(err)
		}
		var out advisor.OptimizeResult
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatal(err)
		}
		if out.GW != 12 {
			t.Errorf("gw=%d want 12", out.GW)
		}
		if fmt.Sprint(out.Squad.IDs) != fmt.Sprint(topSquad) {
			t.Errorf("ids=%v want %v", out.Squad.IDs, topSquad)
		}
		if out.Squad.TotalCost != model.Money(6000) {
			t.Errorf("total_cost=%s want 60.00", out.Squad.TotalCost)
		}
		ids, err := adv.Store().LoadSquad("top")
		if err != nil {
			t.Fatalf("saved squad: %v", err)
		}
		if len(ids) != 15 {
			t.Errorf("saved %d ids want 15", len(ids))
		}
	})

	t.Run("ForcedInclude", func(t *testing.T) {
		_, adv := tmpAdvisor(t)
		b, err := buildOptimizeSquad(context.Background(), adv, OptimizeArgs{RuleArgs: RuleArgs{ForcedInclude: []int{103}}})
		if err != nil {
			t.Fatal(err)
		}
		var out advisor.OptimizeResult
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatal(err)
		}
		got := map[int]bool{}
		for _, id := range out.Squad.IDs {
			got[id] = true
		}
		if !got[103] || got[102] {
			t.Errorf("ids=%v want 103 in and 102 out", out.Squad.IDs)
		}
	})

	t.Run("BudgetTooSmall", func(t *testing.T) {
		_, adv := tmpAdvisor(t)
		_, err := buildOptimizeSquad(context.Background(), adv, OptimizeArgs{RuleArgs: RuleArgs{Budget: "59.9"}})
		if err == nil {
			t.Fatal("expected infeasible error")
		}
	})

	t.Run("MissingGameweek", func(t *testing.T) {
		_, adv := tmpAdvisor(t)
		if _, err := buildOptimizeSquad(context.Background(), adv, OptimizeArgs{GW: 30}); err == nil {
			t.Fatal("expected missing pool error")
		}
	})
}

// ---- TestBuildPlanTransfers ----

func TestBuildPlanTransfers(t *testing.T) {
	// Swap the best midfielder for the worst one; the planner should undo it.
	current := append([]int(nil), topSquad...)
	for i, id := range current {
		if id == 301 {
			current[i] = 307
		}
	}

	t.Run("DefaultsToOneTransfer", func(t *testing.T) {
		_, adv := tmpAdvisor(t)
		b, err := buildPlanTransfers(context.Background(), adv, TransferArgs{IDs: current})
		if err != nil {
			t.Fatal(err)
		}
		var out advisor.TransferResult
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatal(err)
		}
		if len(out.Plan.Transfers) != 1 {
			t.Fatalf("transfers=%d want 1", len(out.Plan.Transfers))
		}
		tr := out.Plan.Transfers[0]
		if tr.OutID != 307 || tr.InID != 301 {
			t.Errorf("swap %d->%d want 307->301", tr.OutID, tr.InID)
		}
		if tr.CostDelta != 0 {
			t.Errorf("cost_delta=%s want 0", tr.CostDelta)
		}
	})

	t.Run("OptimalSquadKeeps", func(t *testing.T) {
		_, adv := tmpAdvisor(t)
		b, err := buildPlanTransfers(context.Background(), adv, TransferArgs{IDs: topSquad, MaxTransfers: 3})
		if err != nil {
			t.Fatal(err)
		}
		var out advisor.TransferResult
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatal(err)
		}
		if len(out.Plan.Transfers) != 0 {
			t.Errorf("transfers=%d want 0", len(out.Plan.Transfers))
		}
	})

	t.Run("RequiresRoster", func(t *testing.T) {
		_, adv := tmpAdvisor(t)
		if _, err := buildPlanTransfers(context.Background(), adv, TransferArgs{}); err == nil {
			t.Fatal("expected error without squad or ids")
		}
	})
}

// ---- TestBuildSelectCaptain ----

func TestBuildSelectCaptain(t *testing.T) {
	_, adv := tmpAdvisor(t)

	if _, err := buildSelectCaptain(adv, CaptainArgs{}); err == nil {
		t.Fatal("expected error without source or members")
	}

	b, err := buildSelectCaptain(adv, CaptainArgs{Members: []captaincy.Member{
		{ID: 301, Form: 8, OpponentDifficulty: 2, Underlying: 0.9, Situational: captaincy.Flags{PenaltyTaker: true}},
		{ID: 401, Form: 5, OpponentDifficulty: 4, Underlying: 0.5},
		{ID: 201, Form: 3, OpponentDifficulty: 3, Underlying: 0.2},
	}})
	if err != nil {
		t.Fatal(err)
	}
	var rec struct {
		model.CaptaincyRecommendation
		Fixtures captaincy.FixtureSummary `json:"fixtures"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Fixtures.Known != 3 || len(rec.Fixtures.Easy) != 1 || rec.Fixtures.Easy[0] != 301 {
		t.Errorf("fixtures=%+v want 3 known, easy [301]", rec.Fixtures)
	}
	if len(rec.Fixtures.Hard) != 1 || rec.Fixtures.Hard[0] != 401 {
		t.Errorf("hard=%v want [401]", rec.Fixtures.Hard)
	}
	if rec.PrimaryID != 301 {
		t.Errorf("primary=%d want 301", rec.PrimaryID)
	}
	if !rec.HasSecondary || rec.SecondaryID != 401 {
		t.Errorf("secondary=%d want 401", rec.SecondaryID)
	}
	if rec.Confidence <= 0 || rec.Confidence > 1 {
		t.Errorf("confidence=%v out of (0,1]", rec.Confidence)
	}
}

// ---- TestBuildValidateSelection ----

func TestBuildValidateSelection(t *testing.T) {
	_, adv := tmpAdvisor(t)

	b, err := buildValidateSelection(adv, ValidateArgs{IDs: topSquad[:14]})
	if err != nil {
		t.Fatal(err)
	}
	var out advisor.ValidateResult
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Valid {
		t.Error("14 players should not validate as a full squad")
	}

	b, err = buildValidateSelection(adv, ValidateArgs{IDs: topSquad[:14], Partial: true})
	if err != nil {
		t.Fatal(err)
	}
	out = advisor.ValidateResult{}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if !out.Valid {
		t.Errorf("partial selection flagged: %+v", out.Violations)
	}
}

// ---- TestBuildPickLineup ----

func TestBuildPickLineup(t *testing.T) {
	dir, adv := tmpAdvisor(t)
	writeJSON(t, filepath.Join(dir, "squad", "top.json"), map[string]any{"ids": topSquad})
	writeJSON(t, filepath.Join(dir, "captaincy", "gw12.json"), []any{
		map[string]any{"id": 401, "form": 9, "opponent_difficulty": 1, "underlying": 1},
		map[string]any{"id": 205, "form": 1, "opponent_difficulty": 5, "underlying": 0},
	})

	b, err := buildPickLineup(adv, LineupArgs{Squad: "top", Formation: "4-4-2", Captaincy: "gw12"})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Formation     string `json:"formation"`
		Starters      []any  `json:"starters"`
		Bench         []any  `json:"bench"`
		CaptainID     int    `json:"captain_id"`
		ViceCaptainID int    `json:"vice_captain_id"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Formation != "4-4-2" || len(out.Starters) != 11 || len(out.Bench) != 4 {
		t.Errorf("formation=%s starters=%d bench=%d", out.Formation, len(out.Starters), len(out.Bench))
	}
	if out.CaptainID != 401 {
		t.Errorf("captain=%d want 401", out.CaptainID)
	}
	// 205 is benched in 4-4-2, so the vice falls to the best other starter.
	if out.ViceCaptainID == 205 || out.ViceCaptainID == 0 {
		t.Errorf("vice=%d should be a starter", out.ViceCaptainID)
	}

	if _, err := buildPickLineup(adv, LineupArgs{Squad: "top", Formation: "2-2-2"}); err == nil {
		t.Fatal("expected formation error")
	}
}

// ---- TestBuildBudgetSweep ----

func TestBuildBudgetSweep(t *testing.T) {
	_, adv := tmpAdvisor(t)
	b, err := buildBudgetSweep(context.Background(), adv, SweepArgs{Budgets: []string{"50.0", "60.0", "100.0"}})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Points []advisor.SweepPoint `json:"points"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Points) != 3 {
		t.Fatalf("points=%d want 3", len(out.Points))
	}
	if out.Points[0].Error == "" {
		t.Error("50.0 should be infeasible")
	}
	if out.Points[1].TotalValue != out.Points[2].TotalValue {
		t.Errorf("values %v and %v should match once the cheapest squad is affordable",
			out.Points[1].TotalValue, out.Points[2].TotalValue)
	}
}
