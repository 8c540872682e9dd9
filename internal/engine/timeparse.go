package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

var (
	durationPattern = regexp.MustCompile(`(\d+)h(?:(\d+)min)?|(\d+)min`)
	clockPattern    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ParseDuration sums every duration written in text ("2h5min", "45min",
// "3h") and returns the total in minutes, reduced modulo one day. Text with
// no duration yields 0.
func ParseDuration(text string) int {
	total := 0
	for _, m := range durationPattern.FindAllStringSubmatch(text, -1) {
		total = (total + atoiMod(m[1])*60 + atoiMod(m[2]) + atoiMod(m[3])) % minutesPerDay
	}
	return total
}

// atoiMod parses a run of digits modulo one day so huge numbers cannot overflow.
func atoiMod(digits string) int {
	n := 0
	for _, r := range digits {
		n = (n*10 + int(r-'0')) % minutesPerDay
	}
	return n
}

// DeriveTimes completes a start/end pair. With only one endpoint the other is
// derived from the durations in description, wrapping around midnight.
func DeriveTimes(start, end, description string) (string, string, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start != "" && !clockPattern.MatchString(start) {
		return "", "", validationf("start must be a time in HH:MM format")
	}
	if end != "" && !clockPattern.MatchString(end) {
		return "", "", validationf("end must be a time in HH:MM format")
	}

	switch {
	case start == "" && end == "":
		return "", "", validationf(MsgNoTime)
	case start != "" && end != "":
		if start == end {
			return "", "", validationf(MsgSameStartEnd)
		}
		return start, end, nil
	}

	dur := ParseDuration(description)
	if start != "" {
		end = formatClock(clockMinutes(start) + dur)
	} else {
		start = formatClock(clockMinutes(end) - dur)
	}
	if start == end {
		return "", "", conflict(MsgSameStartEnd)
	}
	return start, end, nil
}

// clockMinutes converts a validated "HH:MM" to minutes after midnight.
func clockMinutes(clock string) int {
	h, _ := strconv.Atoi(clock[:2])
	m, _ := strconv.Atoi(clock[3:])
	return h*60 + m
}

func formatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
