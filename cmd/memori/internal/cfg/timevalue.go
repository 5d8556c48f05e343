package cfg

import (
	"flag"
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05"
)

// TimeValue satisfies flag.Value, used for command line parsing.
type TimeValue time.Time

var _ flag.Value = &TimeValue{}

func (tv TimeValue) String() string {
	t := time.Time(tv)
	if t.IsZero() {
		return ""
	}
	if t.Truncate(24 * time.Hour).Equal(t) {
		return t.Format(dateLayout)
	}
	return t.Format(timeLayout)
}

func (tv *TimeValue) Set(s string) error {
	if s == "" {
		*tv = TimeValue(time.Time{})
		return nil
	}
	t, err := timeParse(s)
	if err != nil {
		return err
	}
	*tv = TimeValue(t)
	return nil
}

// timeParse parses s as a date or a date with time.
func timeParse(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time value %q, expected formats: %s or %s", s, dateLayout, timeLayout)
}
