package dialog

import "strings"

// AchievementChannel delivers achievement unlocks at most once per session.
type AchievementChannel struct {
	delivered map[string]struct{}
	order     []string
}

// NewAchievementChannel creates an empty channel.
func NewAchievementChannel() *AchievementChannel {
	return &AchievementChannel{delivered: make(map[string]struct{})}
}

// Enqueue returns the labels that have not been delivered yet, in their
// original order, and marks them delivered. Blank labels are skipped.
func (a *AchievementChannel) Enqueue(labels []string) []string {
	var fresh []string
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, seen := a.delivered[label]; seen {
			continue
		}
		a.delivered[label] = struct{}{}
		a.order = append(a.order, label)
		fresh = append(fresh, label)
	}
	return fresh
}

// Delivered returns every label delivered so far.
func (a *AchievementChannel) Delivered() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}
