package scheduler

import "sort"

// SortQueue orders tasks for presentation and selection: critical before
// high before medium before low, then earliest deadline with missing
// deadlines last, then earliest creation time. Ordering is a view concern,
// not a correctness one.
func SortQueue(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		switch {
		case a.Deadline != nil && b.Deadline != nil:
			if !a.Deadline.Equal(*b.Deadline) {
				return a.Deadline.Before(*b.Deadline)
			}
		case a.Deadline != nil:
			return true
		case b.Deadline != nil:
			return false
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
