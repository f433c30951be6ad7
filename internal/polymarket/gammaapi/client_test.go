package gammaapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liamashdown/whaleconsensus/internal/config"
)

func newTestClient(t *testing.T, body string, status int) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("condition_ids"); got != "0xc1" {
			t.Errorf("condition_ids = %q, want 0xc1", got)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(&config.Config{GammaAPIBaseURL: srv.URL, GammaAPIMarketsRPS: 100})
}

func TestGetMarketByConditionID(t *testing.T) {
	c := newTestClient(t, `[{"conditionId":"0xc1","question":"Who wins?","slug":"who-wins-game-1",
		"tags":[{"label":"NBA","slug":"nba"}],"events":[{"slug":"nba-finals"}]}]`, http.StatusOK)

	m, err := c.GetMarketByConditionID(context.Background(), "0xc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Question != "Who wins?" {
		t.Errorf("Question = %q", m.Question)
	}
	if got := m.Categorize(); got != CategorySports {
		t.Errorf("Categorize() = %q, want %q", got, CategorySports)
	}
	if got := m.EventSlug(); got != "nba-finals" {
		t.Errorf("EventSlug() = %q, want nba-finals", got)
	}
}

func TestGetMarketSingleObject(t *testing.T) {
	c := newTestClient(t, `{"conditionId":"0xc1","slug":"solo"}`, http.StatusOK)

	m, err := c.GetMarketByConditionID(context.Background(), "0xc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.EventSlug() != "solo" {
		t.Errorf("EventSlug() = %q, want solo", m.EventSlug())
	}
}

func TestGetMarketNotFound(t *testing.T) {
	c := newTestClient(t, `[]`, http.StatusOK)

	_, err := c.GetMarketByConditionID(context.Background(), "0xc1")
	if !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("err = %v, want ErrMarketNotFound", err)
	}
}

func TestGetMarketBadStatus(t *testing.T) {
	c := newTestClient(t, `oops`, http.StatusInternalServerError)

	if _, err := c.GetMarketByConditionID(context.Background(), "0xc1"); err == nil {
		t.Error("expected error")
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name   string
		market Market
		want   string
	}{
		{"politics tag", Market{Tags: []Tag{{Label: "US Election"}}}, CategoryPolitics},
		{"crypto tag", Market{Tags: []Tag{{Label: "Crypto"}}}, CategoryFinance},
		{"fed slug", Market{Tags: []Tag{{Slug: "fed-rates"}}}, CategoryFinance},
		{"oscars", Market{Tags: []Tag{{Label: "Oscars"}}}, CategoryEntertainment},
		{"sports beats politics by order", Market{Tags: []Tag{{Label: "Politics"}, {Label: "NFL"}}}, CategorySports},
		{"category fallback", Market{Category: "Sports"}, CategorySports},
		{"unknown", Market{Tags: []Tag{{Label: "Weather"}}}, CategoryOther},
		{"empty", Market{}, CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.market.Categorize(); got != tt.want {
				t.Errorf("Categorize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetMarketStringTags(t *testing.T) {
	c := newTestClient(t, `[{"conditionId":"0xc1","tags":["Crypto","Bitcoin"]}]`, http.StatusOK)

	m, err := c.GetMarketByConditionID(context.Background(), "0xc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Categorize(); got != CategoryFinance {
		t.Errorf("Categorize() = %q, want %q", got, CategoryFinance)
	}
}
