package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpl-squad-mcp/internal/captaincy"
	"fpl-squad-mcp/internal/model"
	"fpl-squad-mcp/internal/store"
)

const bootstrapBody = `{
  "events": [
    {"id": 6, "is_current": false, "is_next": false, "finished": true},
    {"id": 7, "is_current": true, "is_next": false, "finished": false},
    {"id": 8, "is_current": false, "is_next": true, "finished": false}
  ],
  "elements": [
    {"id": 1, "web_name": "Raya", "element_type": 1, "team": 1, "now_cost": 55, "status": "a", "ep_next": "4.1", "form": "3.0"},
    {"id": 2, "web_name": "Saka", "element_type": 3, "team": 1, "now_cost": 101, "status": "d", "ep_next": "6.8",
     "form": "7.5", "expected_goal_involvements_per_90": 0.71, "penalties_order": 1, "corners_and_indirect_freekicks_order": 1},
    {"id": 3, "web_name": "Haaland", "element_type": 4, "team": 13, "now_cost": 150, "status": "a", "ep_next": null,
     "form": "9.0", "penalties_order": null},
    {"id": 4, "web_name": "Pedro", "element_type": 4, "team": 6, "now_cost": 70, "status": "a", "ep_next": "5.0", "form": "4.0"},
    {"id": 900, "web_name": "Arteta", "element_type": 5, "team": 1, "now_cost": 15, "status": "a", "ep_next": "2.0"}
  ]
}`

// Arsenal (1) host Chelsea (6) and Brighton (5) twice; Man City (13) blank.
const fixturesBody = `[
  {"event": 7, "team_h": 1, "team_a": 6, "team_h_difficulty": 3, "team_a_difficulty": 4},
  {"event": 7, "team_h": 5, "team_a": 12, "team_h_difficulty": 2, "team_a_difficulty": 3},
  {"event": 7, "team_h": 14, "team_a": 5, "team_h_difficulty": 2, "team_a_difficulty": 4}
]`

func testClient(t *testing.T, h http.HandlerFunc) (*Client, *store.JSONStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	st := store.NewJSONStore(t.TempDir())
	c := NewClient(st)
	c.BaseURL = srv.URL
	c.Sleep = 0
	return c, st
}

func TestSyncPool(t *testing.T) {
	c, st := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/bootstrap-static/":
			w.Write([]byte(bootstrapBody))
		case "/fixtures/":
			assert.Equal(t, "7", r.URL.Query().Get("event"))
			w.Write([]byte(fixturesBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	gw, n, err := c.SyncPool(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 7, gw)
	assert.Equal(t, 4, n)

	cur, err := st.ResolveGW(0)
	require.NoError(t, err)
	assert.Equal(t, 7, cur)

	pool, _, err := st.LoadPool(7)
	require.NoError(t, err)
	saka, ok := pool.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, model.Money(1010), saka.Cost)
	assert.InDelta(t, 6.8, saka.PredictedValue, 1e-12)
	assert.Equal(t, model.Doubtful, saka.Availability)

	haaland, _ := pool.Lookup(3)
	assert.Zero(t, haaland.PredictedValue)

	_, ok = pool.Lookup(900)
	assert.False(t, ok)

	members, err := st.LoadCaptaincy("gw7")
	require.NoError(t, err)
	require.Len(t, members, 4)
	byID := make(map[int]captaincy.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	assert.Equal(t, captaincy.Member{
		ID: 2, Name: "Saka", Form: 7.5, OpponentDifficulty: 3, Underlying: 0.71, PredictedValue: 6.8,
		Situational: captaincy.Flags{Home: true, PenaltyTaker: true, SetPieces: true},
	}, byID[2])
	assert.True(t, byID[3].Situational.BlankGameweek)
	assert.Zero(t, byID[3].OpponentDifficulty)
	assert.False(t, byID[4].Situational.Home)
	assert.InDelta(t, 4.0, byID[4].OpponentDifficulty, 1e-12)
}

func TestSyncPoolDoubleGameweek(t *testing.T) {
	c, st := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fixtures/" {
			w.Write([]byte(fixturesBody))
			return
		}
		w.Write([]byte(`{"events": [{"id": 7, "is_current": true}], "elements": [
		  {"id": 5, "web_name": "Mitoma", "element_type": 3, "team": 5, "now_cost": 65, "ep_next": "5.5"}
		]}`))
	})
	_, _, err := c.SyncPool(context.Background(), false)
	require.NoError(t, err)

	members, err := st.LoadCaptaincy("gw7")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].Situational.DoubleGameweek)
	assert.True(t, members[0].Situational.Home)
	assert.InDelta(t, 3.0, members[0].OpponentDifficulty, 1e-12)
}

func TestFetchRawUsesCache(t *testing.T) {
	var hits atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"ok": true}`))
	})

	for i := 0; i < 2; i++ {
		_, err := c.Fixtures(context.Background(), 7, false)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := c.Fixtures(context.Background(), 7, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchRawRetriesAfter429(t *testing.T) {
	var hits atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	})
	c.MaxRetryAfter = 10 * time.Millisecond

	_, err := c.FetchRaw(context.Background(), "/x/", "x.json", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchRawErrorStatus(t *testing.T) {
	c, st := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	_, err := c.FetchRaw(context.Background(), "/x/", "x.json", true)
	assert.ErrorContains(t, err, "503")
	assert.False(t, st.Exists("x.json"))
}

func TestSyncPoolNoEvent(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events": [], "elements": []}`))
	})
	_, _, err := c.SyncPool(context.Background(), true)
	assert.Error(t, err)
}
