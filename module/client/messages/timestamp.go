package messages

import "time"

// FormatTimestamp 消息时间标签，按 now 所在时区的日历日比较
func FormatTimestamp(t, now time.Time) string {
	t = t.In(now.Location())
	clock := t.Format("3:04 PM")

	today := startOfDay(now)
	day := startOfDay(t)
	switch {
	case day.Equal(today):
		return clock
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday at " + clock
	case !day.Before(today.AddDate(0, 0, -7)):
		return t.Format("Monday") + " at " + clock
	case t.Year() == now.Year():
		return t.Format("Jan 2") + " at " + clock
	default:
		return t.Format("Jan 2, 2006") + " at " + clock
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
