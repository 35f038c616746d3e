package main

import (
	"context"
	"encoding/json"
	"fmt"

	"fpl-squad-mcp/internal/advisor"
	"fpl-squad-mcp/internal/captaincy"
)

type RuleArgs struct {
	Budget        string `json:"budget,omitempty" jsonschema:"Budget ceiling as a decimal, e.g. 100.0 (default from config)"`
	MaxPerGroup   int    `json:"max_per_group,omitempty" jsonschema:"Max squad members per club (default from config)"`
	ForcedInclude []int  `json:"forced_include,omitempty" jsonschema:"Candidate ids that must be in the squad"`
	ForcedExclude []int  `json:"forced_exclude,omitempty" jsonschema:"Candidate ids that must not be in the squad"`
}

func (r RuleArgs) overrides() advisor.RuleOverrides {
	return advisor.RuleOverrides{
		Budget:        r.Budget,
		MaxPerGroup:   r.MaxPerGroup,
		ForcedInclude: r.ForcedInclude,
		ForcedExclude: r.ForcedExclude,
	}
}

type OptimizeArgs struct {
	GW     int    `json:"gw,omitempty" jsonschema:"Gameweek pool to use (0 = current)"`
	SaveAs string `json:"save_as,omitempty" jsonschema:"Save the squad under this name"`
	RuleArgs
}

type TransferArgs struct {
	GW                int    `json:"gw,omitempty" jsonschema:"Gameweek pool to use (0 = current)"`
	Squad             string `json:"squad,omitempty" jsonschema:"Saved squad name (or pass ids)"`
	IDs               []int  `json:"ids,omitempty" jsonschema:"Current roster ids"`
	IncrementalBudget string `json:"incremental_budget,omitempty" jsonschema:"Extra money the swaps may cost in total (default 0)"`
	MaxTransfers      int    `json:"max_transfers,omitempty" jsonschema:"Max swaps (default 1)"`
	RuleArgs
}

type CaptainArgs struct {
	Source  string             `json:"source,omitempty" jsonschema:"Saved captaincy input name (or pass members)"`
	Members []captaincy.Member `json:"members,omitempty" jsonschema:"Members with form, opponent_difficulty, underlying, situational"`
	Squad   string             `json:"squad,omitempty" jsonschema:"Saved squad name to rank from the source"`
	IDs     []int              `json:"ids,omitempty" jsonschema:"Roster ids to rank from the source"`
	Weights *captaincy.Weights `json:"weights,omitempty" jsonschema:"Override the form/opponent/underlying/situational weights"`
}

type ValidateArgs struct {
	GW      int    `json:"gw,omitempty" jsonschema:"Gameweek pool to use (0 = current)"`
	Squad   string `json:"squad,omitempty" jsonschema:"Saved squad name (or pass ids)"`
	IDs     []int  `json:"ids,omitempty" jsonschema:"Selection ids"`
	Partial bool   `json:"partial,omitempty" jsonschema:"Check a partial selection (upper bounds and reachability only)"`
	RuleArgs
}

type LineupArgs struct {
	GW        int    `json:"gw,omitempty" jsonschema:"Gameweek pool to use (0 = current)"`
	Squad     string `json:"squad,omitempty" jsonschema:"Saved squad name (or pass ids)"`
	IDs       []int  `json:"ids,omitempty" jsonschema:"Squad ids"`
	Formation string `json:"formation,omitempty" jsonschema:"D-M-F, e.g. 4-4-2 (default 3-4-3)"`
	Captaincy string `json:"captaincy,omitempty" jsonschema:"Saved captaincy input name for the armbands"`
	Preferred []int  `json:"preferred,omitempty" jsonschema:"Ids to start ahead of higher-value teammates"`
}

type SweepArgs struct {
	GW      int      `json:"gw,omitempty" jsonschema:"Gameweek pool to use (0 = current)"`
	Budgets []string `json:"budgets" jsonschema:"Budget ceilings to solve, e.g. 95.0 and 100.0"`
	RuleArgs
}

func buildOptimizeSquad(ctx context.Context, adv *advisor.Advisor, args OptimizeArgs) ([]byte, error) {
	out, err := adv.Optimize(ctx, advisor.OptimizeRequest{
		GW:     args.GW,
		SaveAs: args.SaveAs,
		Rules:  args.overrides(),
	})
	if err != nil {
		return nil, err
	}
	return marshal(out)
}

func buildPlanTransfers(ctx context.Context, adv *advisor.Advisor, args TransferArgs) ([]byte, error) {
	k := args.MaxTransfers
	if k <= 0 {
		k = 1
	}
	out, err := adv.Transfers(ctx, advisor.TransferRequest{
		GW:                args.GW,
		Roster:            advisor.Roster{Squad: args.Squad, IDs: args.IDs},
		IncrementalBudget: args.IncrementalBudget,
		MaxTransfers:      k,
		Rules:             args.overrides(),
	})
	if err != nil {
		return nil, err
	}
	return marshal(out)
}

func buildSelectCaptain(adv *advisor.Advisor, args CaptainArgs) ([]byte, error) {
	if args.Source == "" && len(args.Members) == 0 {
		return nil, fmt.Errorf("source or members is required")
	}
	out, err := adv.Captain(advisor.CaptainRequest{
		Source:  args.Source,
		Members: args.Members,
		Roster:  advisor.Roster{Squad: args.Squad, IDs: args.IDs},
		Weights: args.Weights,
	})
	if err != nil {
		return nil, err
	}
	return marshal(out)
}

func buildValidateSelection(adv *advisor.Advisor, args ValidateArgs) ([]byte, error) {
	out, err := adv.Validate(advisor.ValidateRequest{
		GW:      args.GW,
		Roster:  advisor.Roster{Squad: args.Squad, IDs: args.IDs},
		Partial: args.Partial,
		Rules:   args.overrides(),
	})
	if err != nil {
		return nil, err
	}
	return marshal(out)
}

func buildPickLineup(adv *advisor.Advisor, args LineupArgs) ([]byte, error) {
	out, err := adv.Lineup(advisor.LineupRequest{
		GW:        args.GW,
		Roster:    advisor.Roster{Squad: args.Squad, IDs: args.IDs},
		Formation: args.Formation,
		Captaincy: args.Captaincy,
		Preferred: args.Preferred,
	})
	if err != nil {
		return nil, err
	}
	return marshal(out)
}

func buildBudgetSweep(ctx context.Context, adv *advisor.Advisor, args SweepArgs) ([]byte, error) {
	out, err := adv.Sweep(ctx, advisor.SweepRequest{
		GW:      args.GW,
		Budgets: args.Budgets,
		Rules:   args.overrides(),
	})
	if err != nil {
		return nil, err
	}
	return marshal(map[string]any{"points": out})
}

func marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
