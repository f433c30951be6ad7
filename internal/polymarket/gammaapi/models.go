package gammaapi

import (
	"encoding/json"
	"strings"
)

// Market represents a Gamma API market
type Market struct {
	ID          string  `json:"id"`
	ConditionID string  `json:"conditionId"`
	Slug        string  `json:"slug"`
	Question    string  `json:"question"`
	EndDate     string  `json:"endDate"`
	Category    string  `json:"category"`
	Active      bool    `json:"active"`
	Closed      bool    `json:"closed"`
	Tags        []Tag   `json:"tags"`
	Events      []Event `json:"events"`
}

// Tag is a market label such as "Politics" or "NBA"
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// UnmarshalJSON accepts a tag object or a bare label string
func (t *Tag) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*t = Tag{Label: label}
		return nil
	}
	type plain Tag
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Tag(p)
	return nil
}

// Event groups related markets under one page
type Event struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Category buckets used for sizing adjustments
const (
	CategorySports        = "Sports"
	CategoryPolitics      = "Politics"
	CategoryFinance       = "Finance"
	CategoryEntertainment = "Entertainment"
	CategoryOther         = "Other"
)

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategorySports, []string{"sports", "nfl", "nba", "mlb", "soccer", "football"}},
	{CategoryPolitics, []string{"politics", "election", "trump", "biden", "congress"}},
	{CategoryFinance, []string{"finance", "crypto", "bitcoin", "fed", "interest"}},
	{CategoryEntertainment, []string{"entertainment", "movies", "oscars", "celebrity"}},
}

// Categorize maps the market's tags, or its category field when it has no
// tags, to one of the category buckets
func (m *Market) Categorize() string {
	labels := make([]string, 0, len(m.Tags)+1)
	for _, t := range m.Tags {
		labels = append(labels, strings.ToLower(t.Label), strings.ToLower(t.Slug))
	}
	if len(labels) == 0 && m.Category != "" {
		labels = append(labels, strings.ToLower(m.Category))
	}

	for _, ck := range categoryKeywords {
		for _, label := range labels {
			for _, kw := range ck.keywords {
				if strings.Contains(label, kw) {
					return ck.category
				}
			}
		}
	}
	return CategoryOther
}

// EventSlug returns the parent event's slug, which links to the page users
// know, falling back to the market slug
func (m *Market) EventSlug() string {
	if len(m.Events) > 0 && m.Events[0].Slug != "" {
		return m.Events[0].Slug
	}
	return m.Slug
}
