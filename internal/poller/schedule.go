package poller

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next activation strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

type ScheduleKind int

const (
	ScheduleCron ScheduleKind = iota
	ScheduleInterval
)

// ParsedSchedule is a normalized poll schedule.
//
// Supported forms:
//   - Interval duration: "5s", "2m30s"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Cron: "*/5 * * * *", "0 */2 * * * *" (seconds), "@hourly", "@every 10s"
//
// Optional prefixes "cron:" and "interval:"/"every:" force the kind.
type ParsedSchedule struct {
	Kind     ScheduleKind
	Cron     string
	Every    time.Duration
	Source   string // "cron" | "duration" | "hhmm"
	Schedule Schedule
}

func (p ParsedSchedule) String() string {
	if p.Kind == ScheduleCron {
		return p.Cron
	}
	return "every " + p.Every.String()
}

var (
	reHHMM     = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

func ParseSchedule(raw string) (ParsedSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSchedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	if p, err := parseInterval(s); err == nil {
		return p, nil
	}
	return ParsedSchedule{}, fmt.Errorf(
		"invalid schedule %q (use a duration like '5s', HH:MM like '00:05', or cron like '*/5 * * * *')",
		raw,
	)
}

func parseCron(expr string) (ParsedSchedule, error) {
	if expr == "" {
		return ParsedSchedule{}, fmt.Errorf("cron schedule required")
	}
	sch, err := cronParser.Parse(expr)
	if err != nil {
		return ParsedSchedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return ParsedSchedule{Kind: ScheduleCron, Cron: expr, Source: "cron", Schedule: sch}, nil
}

func parseInterval(v string) (ParsedSchedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSchedule{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var (
		d   time.Duration
		err error
	)
	if reHHMM.MatchString(v) {
		src = "hhmm"
		d, err = parseHHMM(v)
	} else {
		d, err = time.ParseDuration(v)
		if err != nil {
			err = fmt.Errorf("invalid interval %q (use HH:MM or a duration like '5s')", v)
		}
	}
	if err != nil {
		return ParsedSchedule{}, err
	}
	if d <= 0 {
		return ParsedSchedule{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSchedule{Kind: ScheduleInterval, Every: d, Source: src, Schedule: Every(d)}, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// Every is a fixed-delay schedule. Unlike cron.Every it keeps sub-second
// precision.
type Every time.Duration

func (e Every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }
