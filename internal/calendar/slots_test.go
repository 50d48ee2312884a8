package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func slotPost(id int64, title string, dt Datetime) Post {
	return Post{
		ID:        id,
		AccountID: "acc_1",
		Title:     title,
		Status:    StatusDraft,
		PostType:  PostTypeXPost,
		Datetime:  dt,
		Threads:   []string{title},
	}
}

func TestBuildSlotIndexSameHourKeepsOrder(t *testing.T) {
	posts := []Post{
		slotPost(1, "first", "2024-06-03T09:15"),
		slotPost(2, "second", "2024-06-03T09:40"),
	}

	index := BuildSlotIndex(posts)

	slot := index["2024-06-03_09"]
	assert.Len(t, slot, 2)
	assert.Equal(t, "first", slot[0].Title)
	assert.Equal(t, "second", slot[1].Title)
}

func TestBuildSlotIndexEveryPostExactlyOnce(t *testing.T) {
	posts := []Post{
		slotPost(1, "a", "2024-06-03T07:00"),
		slotPost(2, "b", "2024-06-03T07:59"),
		slotPost(3, "c", "2024-06-04T12:30"),
		slotPost(4, "d", "2024-06-09T22:05"),
	}

	index := BuildSlotIndex(posts)

	seen := make(map[int64]int)
	for _, slot := range index {
		for _, p := range slot {
			seen[p.ID]++
		}
	}
	assert.Len(t, seen, len(posts))
	for _, p := range posts {
		assert.Equal(t, 1, seen[p.ID], "post %d bucketed more than once", p.ID)
	}
}

func TestBuildSlotIndexSkipsInvalidDatetime(t *testing.T) {
	posts := []Post{
		slotPost(1, "ok", "2024-06-03T09:15"),
		slotPost(2, "broken", "not-a-date"),
	}

	index := BuildSlotIndex(posts)

	total := 0
	for _, slot := range index {
		total += len(slot)
	}
	assert.Equal(t, 1, total)
	assert.Len(t, index["2024-06-03_09"], 1)
}

func TestFilterByStatus(t *testing.T) {
	posts := []Post{
		slotPost(1, "a", "2024-06-03T09:00"),
		slotPost(2, "b", "2024-06-03T10:00"),
	}
	posts[1].Status = StatusScheduled

	assert.Len(t, FilterByStatus(posts, StatusScheduled), 1)
	assert.Equal(t, posts, FilterByStatus(posts, ""))
	assert.Empty(t, FilterByStatus(posts, StatusPublished))
}

func TestFilterByDates(t *testing.T) {
	posts := []Post{
		slotPost(1, "in range", "2024-06-03T09:00"),
		slotPost(2, "out of range", "2024-06-10T09:00"),
	}
	week := []string{"2024-06-03", "2024-06-04", "2024-06-05", "2024-06-06", "2024-06-07", "2024-06-08", "2024-06-09"}

	got := FilterByDates(posts, week)
	assert.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}
