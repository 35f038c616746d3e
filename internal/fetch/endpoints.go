package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fpl-squad-mcp/internal/model"
	"fpl-squad-mcp/internal/store"
)

// /bootstrap-static/
func (c *Client) BootstrapStatic(ctx context.Context, force bool) ([]byte, error) {
	return c.FetchRaw(ctx, "/bootstrap-static/", "bootstrap/bootstrap-static.json", force)
}

// /fixtures/?event={gw}
func (c *Client) Fixtures(ctx context.Context, gw int, force bool) ([]byte, error) {
	return c.FetchRaw(ctx,
		fmt.Sprintf("/fixtures/?event=%d", gw),
		fmt.Sprintf("fixtures/gw/%d.json", gw),
		force,
	)
}

type bootstrap struct {
	Events []struct {
		ID        int  `json:"id"`
		IsCurrent bool `json:"is_current"`
		IsNext    bool `json:"is_next"`
		Finished  bool `json:"finished"`
	} `json:"events"`
	Elements []json.RawMessage `json:"elements"`
}

// SyncPool refreshes bootstrap-static and writes game/game.json plus the
// pool snapshot for the current gameweek (the next one before the season
// starts). Elements are stored as-is; store.DecodePool reads the FPL field
// names and uses ep_next as the predicted value. It then pulls that
// gameweek's fixtures and writes captaincy/gw<gw>.json. Returns the gameweek
// and the number of candidates written.
func (c *Client) SyncPool(ctx context.Context, force bool) (int, int, error) {
	raw, err := c.BootstrapStatic(ctx, force)
	if err != nil {
		return 0, 0, err
	}
	var bs bootstrap
	if err := json.Unmarshal(raw, &bs); err != nil {
		return 0, 0, fmt.Errorf("decode bootstrap-static: %w", err)
	}
	gw, next, finished := 0, 0, false
	for _, e := range bs.Events {
		if e.IsCurrent {
			gw, finished = e.ID, e.Finished
		}
		if e.IsNext {
			next = e.ID
		}
	}
	if gw == 0 {
		gw = next
	}
	if gw == 0 {
		return 0, 0, fmt.Errorf("bootstrap-static has no current or next event")
	}

	// Only the four squad positions are candidates.
	kept := make([]json.RawMessage, 0, len(bs.Elements))
	for _, e := range bs.Elements {
		var head struct {
			ElementType int `json:"element_type"`
		}
		if err := json.Unmarshal(e, &head); err != nil {
			return 0, 0, fmt.Errorf("decode element: %w", err)
		}
		if model.Category(head.ElementType).Valid() {
			kept = append(kept, e)
		}
	}

	// Validate before writing so a bad document never replaces a good pool.
	doc := map[string]any{"elements": kept}
	b, err := json.Marshal(doc)
	if err != nil {
		return 0, 0, err
	}
	pool, err := store.DecodePool(b)
	if err != nil {
		return 0, 0, fmt.Errorf("bootstrap-static elements: %w", err)
	}

	if err := c.Store.WriteJSON("game/game.json", map[string]any{
		"current_event":          gw,
		"current_event_finished": finished,
		"next_event":             next,
	}); err != nil {
		return 0, 0, err
	}
	if err := c.Store.WriteRaw(store.PoolPath(gw), b, c.PrettyWrite); err != nil {
		return 0, 0, err
	}
	c.Log.Info("pool synced", zap.Int("gw", gw), zap.Int("candidates", pool.Len()))
	if _, err := c.syncCaptaincy(ctx, gw, kept, force); err != nil {
		return gw, pool.Len(), fmt.Errorf("captaincy context: %w", err)
	}
	return gw, pool.Len(), nil
}
