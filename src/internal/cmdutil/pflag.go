package cmdutil

import (
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
)

// TimeFlag is a pflag.Value holding an RFC3339 timestamp, such as the cutoff of a stale sweep.
type TimeFlag time.Time

func (value *TimeFlag) String() string {
	if time.Time(*value).IsZero() {
		return ""
	}
	return time.Time(*value).Format(time.RFC3339)
}

func (value *TimeFlag) Set(s string) error {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return errors.Wrapf(err, "invalid RFC3339 date: %s", s)
	}
	*value = TimeFlag(ts)
	return nil
}

func (value *TimeFlag) Type() string {
	return "RFC3339 date"
}

func (value *TimeFlag) AsTime() time.Time {
	return time.Time(*value)
}
