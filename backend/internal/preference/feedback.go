package preference

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

const (
	maxSatisfiedQueries    = 100
	maxDissatisfiedQueries = 50

	// satisfiedThreshold is the lowest rating counted as satisfied.
	satisfiedThreshold = 4
)

// Feedback is one rating of an assistant answer.
type Feedback struct {
	// Satisfaction is a 1 to 5 star rating.
	Satisfaction int      `json:"satisfaction"`
	Query        string   `json:"query"`
	Reason       string   `json:"reason,omitempty"`
	ContextID    string   `json:"contextId,omitempty"`
	Category     Category `json:"category,omitempty"`
}

func (f Feedback) Satisfied() bool {
	return f.Satisfaction >= satisfiedThreshold
}

// RecordFeedback folds one rating into the learning data. Satisfied
// ratings also count toward the category frequency.
func (p *Preference) RecordFeedback(f Feedback, now time.Time) {
	category := f.Category
	if category == "" {
		category = ExtractCategory([]string{f.Query})
	}
	l := &p.Learning
	if l.CategoryFrequency == nil {
		l.CategoryFrequency = map[Category]int{}
	}

	if f.Satisfied() {
		l.SatisfiedQueries = appendCapped(l.SatisfiedQueries, SatisfiedQuery{
			Query:     f.Query,
			ContextID: f.ContextID,
			Category:  category,
			Timestamp: now,
		}, maxSatisfiedQueries)
		if category != "" {
			l.CategoryFrequency[category]++
		}
	} else {
		reason := f.Reason
		if reason == "" {
			reason = "unknown"
		}
		l.DissatisfiedQueries = appendCapped(l.DissatisfiedQueries, DissatisfiedQuery{
			Query:     f.Query,
			Reason:    reason,
			Category:  category,
			Timestamp: now,
		}, maxDissatisfiedQueries)
	}
	p.LastAnalyzedAt = &now
}

// AnalyzeTrends adjusts the preference from accumulated feedback and
// returns a description of each adjustment made.
func (p *Preference) AnalyzeTrends() []string {
	var adjustments []string
	l := &p.Learning

	if len(l.DissatisfiedQueries) >= 5 {
		recent := l.DissatisfiedQueries[max(0, len(l.DissatisfiedQueries)-10):]
		counts := map[string]int{}
		for _, q := range recent {
			counts[q.Reason]++
		}
		switch {
		case counts["too_long"] >= 3 && p.Chat.ReplyStyle != ReplyStyleConcise:
			p.Chat.ReplyStyle = ReplyStyleConcise
			adjustments = append(adjustments, "回复风格已调整为简洁模式")
		case counts["too_long"] < 3 && counts["too_short"] >= 3 && p.Chat.ReplyStyle != ReplyStyleDetailed:
			p.Chat.ReplyStyle = ReplyStyleDetailed
			adjustments = append(adjustments, "回复风格已调整为详细模式")
		}
		if counts["not_relevant"] >= 3 {
			adjustments = append(adjustments, "检测到相关性问题，建议检查品类识别准确性")
		}
	}

	if top, freq, ok := topCategory(l.CategoryFrequency); ok && freq >= 5 && top != p.Procurement.DefaultCategory {
		old := string(p.Procurement.DefaultCategory)
		if old == "" {
			old = "无"
		}
		p.Procurement.DefaultCategory = top
		adjustments = append(adjustments, fmt.Sprintf("默认品类已从 %s 调整为 %s", old, top))
	}

	if len(l.DissatisfiedQueries) >= 20 {
		l.DissatisfiedQueries = []DissatisfiedQuery{}
		adjustments = append(adjustments, "已生成改进报告并重置反馈队列")
	}
	return adjustments
}

// topCategory picks the most frequent category, breaking ties by name so
// the result is stable.
func topCategory(freq map[Category]int) (Category, int, bool) {
	if len(freq) == 0 {
		return "", 0, false
	}
	keys := make([]Category, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Category) int {
		if c := cmp.Compare(freq[b], freq[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return keys[0], freq[keys[0]], true
}

func appendCapped[T any](list []T, item T, limit int) []T {
	list = append(list, item)
	if len(list) > limit {
		list = slices.Clone(list[len(list)-limit:])
	}
	return list
}
