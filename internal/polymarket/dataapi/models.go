package dataapi

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Position is an open position held by a wallet. AvgPriceSet and
// CurPriceSet report whether the API sent the price at all, so a reported 0
// can be told apart from a missing field.
type Position struct {
	ConditionID  string
	Outcome      string // Yes, No
	Size         float64
	AvgPrice     float64
	AvgPriceSet  bool
	CurPrice     float64
	CurPriceSet  bool
	Title        string
	Slug         string
	Asset        string // token id
	ProxyWallet  string
	CurrentValue float64
}

// positionWire accepts both the camelCase and snake_case spellings the API
// has used, with numbers as JSON numbers or strings
type positionWire struct {
	ConditionID   string    `json:"conditionId"`
	ConditionIDSn string    `json:"condition_id"`
	Outcome       string    `json:"outcome"`
	Size          flexFloat `json:"size"`
	AvgPrice      flexFloat `json:"avgPrice"`
	AvgPriceSn    flexFloat `json:"avg_price"`
	CurPrice      flexFloat `json:"curPrice"`
	CurPriceSn    flexFloat `json:"current_price"`
	Title         string    `json:"title"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	Asset         string    `json:"asset"`
	TokenID       string    `json:"tokenId"`
	TokenIDSn     string    `json:"token_id"`
	ProxyWallet   string    `json:"proxyWallet"`
	CurrentValue  flexFloat `json:"currentValue"`
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Position) UnmarshalJSON(data []byte) error {
	var w positionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	avg := firstSet(w.AvgPrice, w.AvgPriceSn)
	cur := firstSet(w.CurPrice, w.CurPriceSn)
	*p = Position{
		ConditionID:  firstNonEmpty(w.ConditionID, w.ConditionIDSn),
		Outcome:      w.Outcome,
		Size:         w.Size.value(),
		AvgPrice:     avg.v,
		AvgPriceSet:  avg.set,
		CurPrice:     cur.v,
		CurPriceSet:  cur.set,
		Title:        firstNonEmpty(w.Title, w.Question),
		Slug:         w.Slug,
		Asset:        firstNonEmpty(w.Asset, w.TokenID, w.TokenIDSn),
		ProxyWallet:  w.ProxyWallet,
		CurrentValue: w.CurrentValue.value(),
	}
	return nil
}

// Activity is one trade from a wallet's activity feed
type Activity struct {
	Type        string
	Asset       string
	ConditionID string
	Side        string // BUY, SELL
	Price       float64
	Size        float64
	USDCSize    float64
	Timestamp   int64 // unix seconds
	Slug        string
	Outcome     string
}

type activityWire struct {
	Type        string    `json:"type"`
	Asset       string    `json:"asset"`
	ConditionID string    `json:"conditionId"`
	Side        string    `json:"side"`
	Price       flexFloat `json:"price"`
	Size        flexFloat `json:"size"`
	USDCSize    flexFloat `json:"usdcSize"`
	Timestamp   flexFloat `json:"timestamp"`
	Slug        string    `json:"slug"`
	Outcome     string    `json:"outcome"`
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Activity) UnmarshalJSON(data []byte) error {
	var w activityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Activity{
		Type:        w.Type,
		Asset:       w.Asset,
		ConditionID: w.ConditionID,
		Side:        w.Side,
		Price:       w.Price.value(),
		Size:        w.Size.value(),
		USDCSize:    w.USDCSize.value(),
		Timestamp:   int64(w.Timestamp.value()),
		Slug:        w.Slug,
		Outcome:     w.Outcome,
	}
	return nil
}

// IsTrade reports whether the event is a fill rather than a redeem, split or merge
func (a Activity) IsTrade() bool {
	return a.Type == "" || strings.EqualFold(a.Type, "TRADE")
}

// flexFloat decodes a JSON number, a numeric string, or null
type flexFloat struct {
	v   float64
	set bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.v, f.set = v, true
	return nil
}

func (f flexFloat) value() float64 { return f.v }

func firstSet(vals ...flexFloat) flexFloat {
	for _, v := range vals {
		if v.set {
			return v
		}
	}
	return flexFloat{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
