package messages

import (
	"slices"
	"testing"
	"time"

	"EchoChat/module/chat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func msg(id, sender string, offset time.Duration) model.Message {
	return model.Message{ID: id, ConversationID: "conv", SenderID: sender, Text: id, CreatedAt: t0.Add(offset)}
}

func ids(s *Store) []string {
	var out []string
	for m := range s.Sequence() {
		out = append(out, m.ID)
	}
	return out
}

func TestApplyIncomingIdempotent(t *testing.T) {
	s := NewStore()
	m := msg("m1", "x", 0)
	s.ApplyIncoming(m)
	before := slices.Collect(s.Sequence())
	s.ApplyIncoming(m)
	assert.Equal(t, before, slices.Collect(s.Sequence()))
	assert.Equal(t, 1, s.Len())
}

func TestSequenceOrdersByTimestampThenID(t *testing.T) {
	s := NewStore()
	s.ApplyIncoming(msg("c", "x", 3*time.Second))
	s.ApplyIncoming(msg("a", "x", time.Second))
	s.ApplyIncoming(msg("b", "x", 2*time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, ids(s))

	s.ApplyIncoming(msg("a2", "y", time.Second))
	assert.Equal(t, []string{"a", "a2", "b", "c"}, ids(s))

	// 可重复迭代，可提前结束
	for m := range s.Sequence() {
		assert.Equal(t, "a", m.ID)
		break
	}
	assert.Equal(t, []string{"a", "a2", "b", "c"}, ids(s))
}

func TestLoadHistoryKeepsLiveMessagesMissingFromSnapshot(t *testing.T) {
	s := NewStore()
	live := msg("live", "y", 10*time.Second)
	s.ApplyIncoming(live)

	s.LoadHistory([]model.Message{msg("h1", "x", 0), msg("h2", "y", 5*time.Second)})
	assert.Equal(t, []string{"h1", "h2", "live"}, ids(s))
}

func TestLoadHistoryOverwritesOnlyWhenNotOlder(t *testing.T) {
	s := NewStore()
	withFile := msg("m1", "x", time.Minute)
	withFile.Attachment = &model.Attachment{ID: "f1", Name: "a.png", Type: model.AttachmentPNG, Size: 1}
	s.ApplyIncoming(msg("m1", "x", time.Minute))
	s.ApplyIncoming(msg("m2", "x", 2*time.Minute))

	stale := msg("m2", "x", time.Minute)
	stale.Text = "stale copy"
	s.LoadHistory([]model.Message{withFile, stale})

	got, ok := s.Get("m1")
	require.True(t, ok)
	assert.NotNil(t, got.Attachment, "same timestamp: fetched copy wins")

	got, ok = s.Get("m2")
	require.True(t, ok)
	assert.Equal(t, "m2", got.Text, "older fetched copy must not overwrite")
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.ApplyIncoming(msg("m1", "x", 0))
	require.NotEmpty(t, ids(s))
	s.Reset()
	assert.Empty(t, ids(s))
	assert.Equal(t, 0, s.Len())
	s.ApplyIncoming(msg("m2", "x", 0))
	assert.Equal(t, []string{"m2"}, ids(s))
}

func TestGroupBurstsAndDividers(t *testing.T) {
	s := NewStore()
	s.ApplyIncoming(msg("m3", "x", 400*time.Second))
	s.ApplyIncoming(msg("m1", "x", 0))
	s.ApplyIncoming(msg("m2", "x", 30*time.Second))

	items := slices.Collect(Group(s.Sequence()))
	require.Len(t, items, 3)

	assert.True(t, items[0].NewBurst)
	assert.True(t, items[0].ShowDivider)

	assert.False(t, items[1].NewBurst)
	assert.False(t, items[1].ShowDivider)

	assert.True(t, items[2].NewBurst)
	assert.True(t, items[2].ShowDivider)
}

func TestGroupSenderChangeStartsBurstWithoutDivider(t *testing.T) {
	seq := slices.Values([]model.Message{
		msg("m1", "x", 0),
		msg("m2", "y", 10*time.Second),
		msg("m3", "y", 5*time.Minute+10*time.Second),
	})
	items := slices.Collect(Group(seq))
	require.Len(t, items, 3)
	assert.True(t, items[1].NewBurst)
	assert.False(t, items[1].ShowDivider)
	assert.True(t, items[2].NewBurst, "exactly five minutes apart")
	assert.True(t, items[2].ShowDivider)
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 5, 10, 18, 0, 0, 0, loc) // Friday

	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, 5, 10, 15, 4, 0, 0, loc), "3:04 PM"},
		{time.Date(2024, 5, 9, 9, 30, 0, 0, loc), "Yesterday at 9:30 AM"},
		{time.Date(2024, 5, 6, 15, 4, 0, 0, loc), "Monday at 3:04 PM"},
		{time.Date(2024, 5, 3, 8, 0, 0, 0, loc), "Friday at 8:00 AM"},
		{time.Date(2024, 1, 5, 15, 4, 0, 0, loc), "Jan 5 at 3:04 PM"},
		{time.Date(2023, 1, 5, 15, 4, 0, 0, loc), "Jan 5, 2023 at 3:04 PM"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatTimestamp(c.at, now), c.at.String())
	}
}
