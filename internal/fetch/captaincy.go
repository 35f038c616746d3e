package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"fpl-squad-mcp/internal/captaincy"
	"fpl-squad-mcp/internal/store"
)

// number decodes FPL fields that arrive either as JSON numbers or as quoted
// decimals ("5.2"). null reads as 0.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", s, err)
	}
	*n = number(v)
	return nil
}

type captaincyElement struct {
	ID          int    `json:"id"`
	WebName     string `json:"web_name"`
	Team        int    `json:"team"`
	Form        number `json:"form"`
	EPNext      number `json:"ep_next"`
	XGI90       number `json:"expected_goal_involvements_per_90"`
	Penalties   *int   `json:"penalties_order"`
	DirectFK    *int   `json:"direct_freekicks_order"`
	CornersAndI *int   `json:"corners_and_indirect_freekicks_order"`
}

type fixture struct {
	Event           int `json:"event"`
	TeamH           int `json:"team_h"`
	TeamA           int `json:"team_a"`
	TeamHDifficulty int `json:"team_h_difficulty"`
	TeamADifficulty int `json:"team_a_difficulty"`
}

// teamFixture is one club's view of its gameweek.
type teamFixture struct {
	count      int
	difficulty int
	home       bool
}

func firstChoice(order *int) bool {
	return order != nil && *order == 1
}

// syncCaptaincy downloads the fixtures of gw and writes captaincy/gw<gw>.json
// with one member per pool element: form, ep_next, expected goal involvements
// per 90 and the next-fixture context. Clubs without a fixture are flagged
// blank; clubs with two are flagged double and scored on the mean difficulty.
func (c *Client) syncCaptaincy(ctx context.Context, gw int, elements []json.RawMessage, force bool) (int, error) {
	raw, err := c.Fixtures(ctx, gw, force)
	if err != nil {
		return 0, err
	}
	var fixtures []fixture
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return 0, fmt.Errorf("decode fixtures gw %d: %w", gw, err)
	}

	teams := make(map[int]*teamFixture)
	side := func(team, difficulty int, home bool) {
		tf, ok := teams[team]
		if !ok {
			tf = &teamFixture{home: home}
			teams[team] = tf
		}
		tf.count++
		tf.difficulty += difficulty
	}
	for _, f := range fixtures {
		if f.Event != 0 && f.Event != gw {
			continue
		}
		side(f.TeamH, f.TeamHDifficulty, true)
		side(f.TeamA, f.TeamADifficulty, false)
	}

	members := make([]captaincy.Member, 0, len(elements))
	for _, e := range elements {
		var el captaincyElement
		if err := json.Unmarshal(e, &el); err != nil {
			return 0, fmt.Errorf("decode element: %w", err)
		}
		m := captaincy.Member{
			ID:             el.ID,
			Name:           el.WebName,
			Form:           float64(el.Form),
			Underlying:     float64(el.XGI90),
			PredictedValue: float64(el.EPNext),
			Situational: captaincy.Flags{
				PenaltyTaker: firstChoice(el.Penalties),
				SetPieces:    firstChoice(el.DirectFK) || firstChoice(el.CornersAndI),
			},
		}
		if tf, ok := teams[el.Team]; ok {
			m.OpponentDifficulty = float64(tf.difficulty) / float64(tf.count)
			m.Situational.Home = tf.home
			m.Situational.DoubleGameweek = tf.count > 1
		} else {
			m.Situational.BlankGameweek = true
		}
		members = append(members, m)
	}

	name := fmt.Sprintf("gw%d", gw)
	if err := c.Store.WriteJSON(store.CaptaincyPath(name), map[string]any{"members": members}); err != nil {
		return 0, err
	}
	c.Log.Info("captaincy context synced", zap.Int("gw", gw), zap.Int("members", len(members)),
		zap.Int("fixtures", len(fixtures)))
	return len(members), nil
}
