// Package advisor ties the snapshot store, the configured rules and the
// solvers together. The CLI and the MCP server are thin layers over it.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fpl-squad-mcp/internal/captaincy"
	"fpl-squad-mcp/internal/config"
	"fpl-squad-mcp/internal/constraints"
	"fpl-squad-mcp/internal/lineup"
	"fpl-squad-mcp/internal/logging"
	"fpl-squad-mcp/internal/model"
	"fpl-squad-mcp/internal/optimizer"
	"fpl-squad-mcp/internal/solverpool"
	"fpl-squad-mcp/internal/store"
	"fpl-squad-mcp/internal/transfer"
)

type Advisor struct {
	store     *store.JSONStore
	pool      *solverpool.Pool
	rules     constraints.Model
	captaincy captaincy.Options
	maxNodes  int
	log       *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) (*Advisor, error) {
	log = logging.OrNop(log)
	rules, err := cfg.Rules.Model()
	if err != nil {
		return nil, err
	}
	return &Advisor{
		store:     store.NewJSONStore(cfg.DataRoot),
		pool:      solverpool.New(cfg.Solver.Workers, cfg.Solver.SolveTimeout(), log),
		rules:     rules,
		captaincy: cfg.Captaincy.Options(),
		maxNodes:  cfg.Solver.MaxNodes,
		log:       log.With(zap.String("component", "advisor")),
	}, nil
}

func (a *Advisor) Store() *store.JSONStore { return a.store }

// RuleOverrides adjusts the configured rules for one request. Zero values
// keep the configured setting.
type RuleOverrides struct {
	Budget        string `json:"budget,omitempty"`
	MaxPerGroup   int    `json:"max_per_group,omitempty"`
	ForcedInclude []int  `json:"forced_include,omitempty"`
	ForcedExclude []int  `json:"forced_exclude,omitempty"`
}

func (a *Advisor) Rules(o RuleOverrides) (constraints.Model, error) {
	m := a.rules
	bounds := make(map[model.Category]constraints.Bounds, len(m.CategoryBounds))
	for k, v := range m.CategoryBounds {
		bounds[k] = v
	}
	m.CategoryBounds = bounds
	if s := strings.TrimSpace(o.Budget); s != "" {
		b, err := model.ParseMoney(s)
		if err != nil {
			return constraints.Model{}, model.InvalidInput("budget", "%v", err)
		}
		m.BudgetCeiling = b
	}
	if o.MaxPerGroup != 0 {
		m.MaxPerGroup = o.MaxPerGroup
	}
	m.ForcedInclude = append([]int(nil), o.ForcedInclude...)
	m.ForcedExclude = append([]int(nil), o.ForcedExclude...)
	return m, m.Check()
}

type OptimizeRequest struct {
	GW     int
	Rules  RuleOverrides
	SaveAs string
}

type OptimizeResult struct {
	GW             int         `json:"gw"`
	SolveID        string      `json:"solve_id"`
	Squad          model.Squad `json:"squad"`
	GeneratedAtUTC string      `json:"generated_at_utc"`
}

func (a *Advisor) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResult, error) {
	pool, gw, err := a.store.LoadPool(req.GW)
	if err != nil {
		return nil, err
	}
	m, err := a.Rules(req.Rules)
	if err != nil {
		return nil, err
	}
	out := &OptimizeResult{GW: gw}
	err = a.pool.Do(ctx, func(ctx context.Context, id string) error {
		out.SolveID = id
		sq, err := optimizer.Optimize(ctx, pool, m, optimizer.Options{MaxNodes: a.maxNodes, SolveID: id, Logger: a.log})
		out.Squad = sq
		return err
	})
	if err != nil {
		return nil, err
	}
	out.GeneratedAtUTC = now()
	if req.SaveAs != "" {
		if err := a.store.SaveSquad(req.SaveAs, out.Squad); err != nil {
			return nil, fmt.Errorf("save squad: %w", err)
		}
		a.log.Info("squad saved", zap.String("name", req.SaveAs), zap.String("solve_id", out.SolveID))
	}
	return out, nil
}

// Roster names a roster either by saved squad name or by explicit ids.
type Roster struct {
	Squad string
	IDs   []int
}

func (a *Advisor) rosterIDs(r Roster) ([]int, error) {
	if len(r.IDs) > 0 {
		return r.IDs, nil
	}
	if r.Squad == "" {
		return nil, model.InvalidInput("squad", "a squad name or ids is required")
	}
	return a.store.LoadSquad(r.Squad)
}

type TransferRequest struct {
	GW                int
	Roster            Roster
	IncrementalBudget string
	MaxTransfers      int
	Rules             RuleOverrides
}

type TransferResult struct {
	GW             int                `json:"gw"`
	SolveID        string             `json:"solve_id"`
	Plan           model.TransferPlan `json:"plan"`
	Before         []int              `json:"before"`
	After          []int              `json:"after"`
	GeneratedAtUTC string             `json:"generated_at_utc"`
}

func (a *Advisor) Transfers(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	pool, gw, err := a.store.LoadPool(req.GW)
	if err != nil {
		return nil, err
	}
	ids, err := a.rosterIDs(req.Roster)
	if err != nil {
		return nil, err
	}
	m, err := a.Rules(req.Rules)
	if err != nil {
		return nil, err
	}
	budget := model.Money(0)
	if s := strings.TrimSpace(req.IncrementalBudget); s != "" {
		if budget, err = model.ParseMoney(s); err != nil {
			return nil, model.InvalidInput("incremental_budget", "%v", err)
		}
	}
	out := &TransferResult{GW: gw, Before: append([]int(nil), ids...)}
	err = a.pool.Do(ctx, func(ctx context.Context, id string) error {
		out.SolveID = id
		plan, err := transfer.Plan(ctx, pool, ids, m, budget, req.MaxTransfers,
			transfer.Options{MaxNodes: a.maxNodes, SolveID: id, Logger: a.log})
		out.Plan = plan
		return err
	})
	if err != nil {
		return nil, err
	}
	out.After = out.Plan.Apply(ids)
	out.GeneratedAtUTC = now()
	return out, nil
}

type CaptainRequest struct {
	// Source is a saved captaincy input name; Members takes precedence.
	Source  string
	Members []captaincy.Member
	// Roster, when set, keeps only those members.
	Roster  Roster
	Weights *captaincy.Weights
}

// CaptainResult is the recommendation plus the fixture outlook of the
// members it ranked.
type CaptainResult struct {
	model.CaptaincyRecommendation
	Fixtures captaincy.FixtureSummary `json:"fixtures"`
}

func (a *Advisor) Captain(req CaptainRequest) (*CaptainResult, error) {
	members := req.Members
	if len(members) == 0 && req.Source != "" {
		var err error
		if members, err = a.store.LoadCaptaincy(req.Source); err != nil {
			return nil, err
		}
	}
	if req.Roster.Squad != "" || len(req.Roster.IDs) > 0 {
		ids, err := a.rosterIDs(req.Roster)
		if err != nil {
			return nil, err
		}
		if members, err = keepMembers(members, ids); err != nil {
			return nil, err
		}
	}
	opts := a.captaincy
	if req.Weights != nil {
		opts.Weights = *req.Weights
	}
	rec, err := captaincy.Select(members, opts)
	if err != nil {
		return nil, err
	}
	return &CaptainResult{CaptaincyRecommendation: rec, Fixtures: captaincy.AnalyzeFixtures(members)}, nil
}

func heldMembers(members []captaincy.Member, ids []int) []captaincy.Member {
	held := make(map[int]bool, len(ids))
	for _, id := range ids {
		held[id] = true
	}
	var out []captaincy.Member
	for _, m := range members {
		if held[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// keepMembers returns the members named by ids, in ids order.
func keepMembers(members []captaincy.Member, ids []int) ([]captaincy.Member, error) {
	byID := make(map[int]captaincy.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	out := make([]captaincy.Member, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, model.InvalidInput("squad", "candidate %d has no captaincy input", id)
		}
		out = append(out, m)
	}
	return out, nil
}

type ValidateRequest struct {
	GW      int
	Roster  Roster
	Partial bool
	Rules   RuleOverrides
}

type ValidateResult struct {
	GW         int                      `json:"gw"`
	Valid      bool                     `json:"valid"`
	Violations []*constraints.Violation `json:"violations"`
}

func (a *Advisor) Validate(req ValidateRequest) (*ValidateResult, error) {
	pool, gw, err := a.store.LoadPool(req.GW)
	if err != nil {
		return nil, err
	}
	ids, err := a.rosterIDs(req.Roster)
	if err != nil {
		return nil, err
	}
	m, err := a.Rules(req.Rules)
	if err != nil {
		return nil, err
	}
	mode := constraints.Full
	if req.Partial {
		mode = constraints.Partial
	}
	vs, err := constraints.ValidateAll(pool, ids, m, mode)
	if err != nil {
		return nil, err
	}
	if vs == nil {
		vs = []*constraints.Violation{}
	}
	return &ValidateResult{GW: gw, Valid: len(vs) == 0, Violations: vs}, nil
}

type LineupRequest struct {
	GW        int
	Roster    Roster
	Formation string
	// Captaincy is a saved captaincy input name; empty picks armbands by value.
	Captaincy string
	Preferred []int
}

func (a *Advisor) Lineup(req LineupRequest) (*lineup.Result, error) {
	f, err := lineup.ParseFormation(req.Formation)
	if err != nil {
		return nil, err
	}
	pool, _, err := a.store.LoadPool(req.GW)
	if err != nil {
		return nil, err
	}
	ids, err := a.rosterIDs(req.Roster)
	if err != nil {
		return nil, err
	}
	members, err := pool.Resolve(ids)
	if err != nil {
		return nil, err
	}
	var rec *model.CaptaincyRecommendation
	if req.Captaincy != "" {
		all, err := a.store.LoadCaptaincy(req.Captaincy)
		if err != nil {
			return nil, err
		}
		// Members without an input simply cannot take an armband by rank.
		if held := heldMembers(all, ids); len(held) > 0 {
			r, err := a.Captain(CaptainRequest{Members: held})
			if err != nil {
				return nil, err
			}
			rec = &r.CaptaincyRecommendation
		}
	}
	return lineup.Build(model.NewSquad(members, a.rules.BudgetCeiling), f, rec, req.Preferred)
}

type SweepRequest struct {
	GW      int
	Budgets []string
	Rules   RuleOverrides
}

// SweepPoint is one budget's optimum. Infeasible budgets carry Error and no
// squad.
type SweepPoint struct {
	Budget     model.Money  `json:"budget"`
	TotalValue float64      `json:"total_value"`
	TotalCost  model.Money  `json:"total_cost"`
	Squad      *model.Squad `json:"squad,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Sweep solves the same pool at each budget concurrently.
func (a *Advisor) Sweep(ctx context.Context, req SweepRequest) ([]SweepPoint, error) {
	if len(req.Budgets) == 0 {
		return nil, model.InvalidInput("budgets", "at least one budget is required")
	}
	pool, _, err := a.store.LoadPool(req.GW)
	if err != nil {
		return nil, err
	}
	models := make([]constraints.Model, len(req.Budgets))
	for i, b := range req.Budgets {
		o := req.Rules
		o.Budget = b
		if models[i], err = a.Rules(o); err != nil {
			return nil, err
		}
	}
	return solverpool.Map(ctx, a.pool, len(models), func(ctx context.Context, i int, id string) (SweepPoint, error) {
		m := models[i]
		pt := SweepPoint{Budget: m.BudgetCeiling}
		sq, err := optimizer.Optimize(ctx, pool, m, optimizer.Options{MaxNodes: a.maxNodes, SolveID: id, Logger: a.log})
		switch {
		case errors.Is(err, optimizer.ErrInfeasible):
			pt.Error = err.Error()
			return pt, nil
		case err != nil:
			return pt, err
		}
		pt.Squad = &sq
		pt.TotalValue = sq.TotalValue
		pt.TotalCost = sq.TotalCost
		return pt, nil
	})
}

// SaveResult writes v under results/<kind>/<name>.json.
func (a *Advisor) SaveResult(kind, name string, v any) error {
	return a.store.WriteJSON(store.ResultPath(kind, name), v)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
