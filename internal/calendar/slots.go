package calendar

// SlotIndex maps a "{date}_{hour}" key to the posts scheduled in that hour.
// It is derived from a post list on demand and never persisted; relative
// order within a slot follows the input list.
type SlotIndex map[string][]Post

// BuildSlotIndex buckets posts by their (date, hour) calendar slot. Posts
// whose datetime does not parse are left out rather than bucketed under a
// garbage key.
func BuildSlotIndex(posts []Post) SlotIndex {
	index := make(SlotIndex)
	for _, p := range posts {
		if !p.Datetime.Valid() {
			continue
		}
		key := p.Datetime.SlotKey()
		index[key] = append(index[key], p)
	}
	return index
}

// FilterByStatus returns the posts matching status, preserving order. An
// empty status means no filtering.
func FilterByStatus(posts []Post, status Status) []Post {
	if status == "" {
		return posts
	}
	var out []Post
	for _, p := range posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// FilterByDates returns the posts falling on one of the given calendar
// dates, preserving order.
func FilterByDates(posts []Post, dates []string) []Post {
	want := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		want[d] = struct{}{}
	}
	var out []Post
	for _, p := range posts {
		if _, ok := want[p.Datetime.Date()]; ok {
			out = append(out, p)
		}
	}
	return out
}
