package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank_ExcludesUnimportantZeroOverlap(t *testing.T) {
	facts := []Fact{
		{ID: 1, Content: "My cat is called Miso", Importance: 1},
		{ID: 2, Content: "User is vegetarian", Importance: 2},
	}

	got := Rank("what should I cook tonight", facts, 5)
	assert.Equal(t, []string{"User is vegetarian"}, got)
}

func TestRank_OverlapOutranksImportance(t *testing.T) {
	facts := []Fact{
		{ID: 1, Content: "prefers short answers", Importance: 3},
		{ID: 2, Content: "The cat is called Miso", Importance: 1},
	}

	got := Rank("What is my cat called?", facts, 5)
	assert.Equal(t, []string{"The cat is called Miso", "prefers short answers"}, got)
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	facts := []Fact{
		{ID: 1, Content: "alpha", Importance: 2},
		{ID: 2, Content: "beta", Importance: 2},
		{ID: 3, Content: "gamma", Importance: 2},
	}

	assert.Equal(t, []string{"alpha", "beta"}, Rank("unrelated", facts, 2))
}

func TestRank_CaseInsensitiveSetOverlap(t *testing.T) {
	facts := []Fact{
		{ID: 1, Content: "Paris Paris Paris", Importance: 1},
		{ID: 2, Content: "paris trip in May", Importance: 1},
	}

	// Repeated tokens count once, so the first fact overlaps by 1 and the second by 3.
	got := Rank("PARIS in may?", facts, 5)
	assert.Equal(t, []string{"paris trip in May", "Paris Paris Paris"}, got)
}

func TestRank_LimitZero(t *testing.T) {
	assert.Empty(t, Rank("x", []Fact{{Content: "x", Importance: 5}}, 0))
}

func TestPolicy_Decide(t *testing.T) {
	var p Policy

	d, ok := p.Decide(map[string]any{"content": "  likes jazz "})
	assert.True(t, ok)
	assert.Equal(t, Decision{Content: "likes jazz", Category: "general", Importance: 2}, d)

	d, ok = p.Decide(map[string]any{"content": "birthday 3 May", "category": "dates", "importance": float64(4)})
	assert.True(t, ok)
	assert.Equal(t, Decision{Content: "birthday 3 May", Category: "dates", Importance: 4}, d)

	_, ok = p.Decide(map[string]any{"content": ""})
	assert.False(t, ok)
	_, ok = p.Decide(nil)
	assert.False(t, ok)
}
