package markethours

import (
	"fmt"
	"strings"
	"time"
)

// AddHolidays marks dates ("2006-01-02", in the exchange timezone) as
// non-trading days.
func (c *Calendar) AddHolidays(dates ...string) error {
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", d, c.loc)
		if err != nil {
			return fmt.Errorf("parse holiday %q: %w", d, err)
		}
		c.holidays[dateKey(t)] = true
	}
	return nil
}

// IsHoliday returns true if t's date in the exchange timezone is a holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[dateKey(t.In(c.loc))]
}

// Holidays returns how many holidays are registered.
func (c *Calendar) Holidays() int { return len(c.holidays) }
