// Package memory holds long-lived user facts and the lexical ranking used to
// surface them.
package memory

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	DefaultCategory   = "general"
	DefaultImportance = 2
)

type Fact struct {
	ID         int64
	Category   string
	Content    string
	Importance int
	CreatedAt  time.Time
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func tokens(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range wordRE.FindAllString(strings.ToLower(s), -1) {
		out[w] = struct{}{}
	}
	return out
}

// Rank scores facts against query and returns the content of the top limit.
//
// score = overlap + importance*0.3, where overlap is the number of shared word
// tokens. Facts with no overlap are dropped unless importance >= 2. Equal scores
// keep the input order, so callers passing facts oldest-first get oldest-first ties.
func Rank(query string, facts []Fact, limit int) []string {
	if limit <= 0 {
		return nil
	}
	q := tokens(query)

	type scored struct {
		content string
		score   float64
	}
	kept := make([]scored, 0, len(facts))
	for _, f := range facts {
		overlap := 0
		for w := range tokens(f.Content) {
			if _, ok := q[w]; ok {
				overlap++
			}
		}
		if overlap == 0 && f.Importance < 2 {
			continue
		}
		kept = append(kept, scored{content: f.Content, score: float64(overlap) + float64(f.Importance)*0.3})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > limit {
		kept = kept[:limit]
	}
	out := make([]string, 0, len(kept))
	for _, s := range kept {
		out = append(out, s.content)
	}
	return out
}

// Decision is what the policy wants written.
type Decision struct {
	Content    string
	Category   string
	Importance int
}

// Policy maps a planner's write_memory payload to a storage decision.
type Policy struct{}

// Decide returns false when the payload carries no usable content.
func (Policy) Decide(payload map[string]any) (Decision, bool) {
	content, _ := payload["content"].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return Decision{}, false
	}

	d := Decision{Content: content, Category: DefaultCategory, Importance: DefaultImportance}
	if c, ok := payload["category"].(string); ok && strings.TrimSpace(c) != "" {
		d.Category = c
	}
	switch v := payload["importance"].(type) {
	case int:
		d.Importance = v
	case float64:
		d.Importance = int(v)
	}
	if d.Importance < 1 {
		d.Importance = 1
	}
	return d, true
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one persisted history row. Rows are append-only and read in id order.
type ChatMessage struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	Timestamp time.Time
}
