package pipeline

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// cronField matches one field of a 5-field cron expression.
type cronField struct {
	any    bool
	values []int
}

func (f cronField) matches(v int) bool {
	return f.any || slices.Contains(f.values, v)
}

// parseCronField accepts "*", "*/n", "a", "a-b", "a-b/n" and comma lists of
// those, within [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{any: true}, nil
	}
	var out cronField
	for _, part := range strings.Split(field, ",") {
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid step %q", part)
			}
			step, part = n, base
		}
		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("%q outside [%d, %d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out.values = append(out.values, v)
		}
	}
	return out, nil
}

// cronSchedule is a parsed "minute hour day-of-month month day-of-week"
// expression evaluated in UTC.
type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("cron %q field %d: %w", expr, i+1, err)
		}
		parsed[i] = cf
	}
	return cronSchedule{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

// next returns the first matching minute strictly after after, searching up
// to one year ahead.
func (c cronSchedule) next(after time.Time) (time.Time, error) {
	t := after.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for ; t.Before(limit); t = t.Add(time.Minute) {
		if c.matches(t) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron: no match within a year after %s", after.Format(time.RFC3339))
}
