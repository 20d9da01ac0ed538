package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"market_briefing/internal/models"
)

// Clock is a wall-clock time of day in the briefing zone.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant of c on the calendar day of t, in t's location.
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// ParseClockList parses a comma separated list of "HH:MM". Empty input yields no slots.
func ParseClockList(s string) ([]Clock, error) {
	var out []Clock
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseClock(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseWeekday accepts English day names ("Sunday", "sun").
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", s)
}

// ParseChannels parses "Name=ChannelID,Name2=ChannelID2".
// An entry without a name uses the channel ID as its name.
func ParseChannels(s string) ([]models.Channel, error) {
	var out []models.Channel
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, id, found := strings.Cut(entry, "=")
		if !found {
			id = name
		}
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid channel entry %q", entry)
		}
		out = append(out, models.Channel{Name: name, ID: id})
	}
	return out, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", s, err)
	}
	return id, nil
}
