package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Expression string        `json:"expression"`
	Next       time.Time     `json:"next"`
	Last       time.Time     `json:"last,omitempty"`
	Upcoming   []time.Time   `json:"upcoming"`
	UntilNext  time.Duration `json:"until_next"`
	SinceLast  time.Duration `json:"since_last,omitempty"`
}

// Parse accepts standard five-field expressions and descriptors like @hourly.
func Parse(expr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// GetTriggerInfo reports the previous and the next count activations of
// expr relative to ref.
func GetTriggerInfo(expr string, ref time.Time, count int) (*TriggerInfo, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		count = 1
	}

	info := &TriggerInfo{Expression: expr}
	cursor := ref
	for range count {
		cursor = schedule.Next(cursor)
		if cursor.IsZero() {
			break
		}
		info.Upcoming = append(info.Upcoming, cursor)
	}
	if len(info.Upcoming) > 0 {
		info.Next = info.Upcoming[0]
		info.UntilNext = info.Next.Sub(ref)
	}

	info.Last = previous(schedule, ref)
	if !info.Last.IsZero() {
		info.SinceLast = ref.Sub(info.Last)
	}
	return info, nil
}

// previous walks back hour by hour, up to a year, until an activation
// before ref is found, then advances to the latest one not after ref.
func previous(schedule cron.Schedule, ref time.Time) time.Time {
	for i := 1; i <= 366*24; i++ {
		start := ref.Add(-time.Duration(i) * time.Hour)
		candidate := schedule.Next(start)
		if candidate.IsZero() || candidate.After(ref) {
			continue
		}
		for {
			next := schedule.Next(candidate)
			if next.IsZero() || next.After(ref) {
				return candidate
			}
			candidate = next
		}
	}
	return time.Time{}
}
