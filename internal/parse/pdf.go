package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// <vehicle><dd/mm/yyyy><HH:mm><trailing>, tolerant of spacing. The day must
	// have two digits when glued to the vehicle number, otherwise the split
	// between them is ambiguous.
	startGluedRe  = regexp.MustCompile(`^(\d{4,6})\s*(\d{2})\s*/\s*(\d{1,2})\s*/\s*(\d{4})\s*(\d{1,2})\s*:\s*(\d{2})(.*)$`)
	startSpacedRe = regexp.MustCompile(`^(\d{4,6})\s+(\d{1,2})\s*/\s*(\d{1,2})\s*/\s*(\d{4})\s*(\d{1,2})\s*:\s*(\d{2})(.*)$`)
	dateLikeRe    = regexp.MustCompile(`\d{1,2}\s*/\s*\d{1,2}\s*/\s*\d{4}`)
	driverRe      = regexp.MustCompile(`^\d{6,}\s*-\s*\S.*$`)
	numericRe     = regexp.MustCompile(`^\d+$`)
	newlineRe     = regexp.MustCompile(`\r?\n`)
)

// StartLine is the parsed header line of a trip.
type StartLine struct {
	LineNo   int
	Vehicle  string
	Day      int
	Month    int
	Year     int
	Hour     int
	Minute   int
	Trailing string
}

// LineGroup is a trip header plus the metadata lines that follow it.
type LineGroup struct {
	Start StartLine
	Lines []string
}

// SplitLines splits extracted text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	raw := newlineRe.Split(text, -1)
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// MatchStart reports whether line opens a new trip and parses its header.
func MatchStart(line string) (StartLine, bool) {
	m := startGluedRe.FindStringSubmatch(line)
	if m == nil {
		m = startSpacedRe.FindStringSubmatch(line)
	}
	if m == nil {
		return StartLine{}, false
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	return StartLine{
		Vehicle:  m[1],
		Day:      atoi(m[2]),
		Month:    atoi(m[3]),
		Year:     atoi(m[4]),
		Hour:     atoi(m[5]),
		Minute:   atoi(m[6]),
		Trailing: strings.TrimSpace(m[7]),
	}, true
}

// GroupLines folds the line sequence into trip groups. Lines before the first
// trip header are dropped. Lines that look like they carry a date but do not
// match the header grammar are reported as warnings.
func GroupLines(lines []string) ([]LineGroup, []string) {
	var (
		groups   []LineGroup
		warnings []string
	)
	for i, line := range lines {
		if start, ok := MatchStart(line); ok {
			start.LineNo = i + 1
			groups = append(groups, LineGroup{Start: start})
			continue
		}
		if dateLikeRe.MatchString(line) {
			warnings = append(warnings, fmt.Sprintf("line %d: date-like text not recognized as a trip: %q", i+1, line))
		}
		if n := len(groups); n > 0 {
			groups[n-1].Lines = append(groups[n-1].Lines, line)
		}
	}
	return groups, warnings
}

// ExtractEvent turns one trip group into a normalized event. Every metadata
// heuristic tolerates absence; only an invalid date or time is an error.
func ExtractEvent(g LineGroup, grammar Grammar) (NormalizedEvent, error) {
	s := g.Start
	ev, err := newEvent(grammar.Location, s.Vehicle, s.Day, s.Month, s.Year, s.Hour, s.Minute)
	if err != nil {
		return NormalizedEvent{}, err
	}

	if len(s.Trailing) > 2 {
		ev.Class = s.Trailing
	}

	var observations []string
	for i, line := range g.Lines {
		if driverRe.MatchString(line) {
			ev.Driver = line
			if i > 0 && numericRe.MatchString(g.Lines[i-1]) {
				ev.ServiceNumber = g.Lines[i-1]
			}
		}
		if ev.Company == "" && containsAny(line, grammar.Carriers) {
			ev.Company = line
		}
		if containsAny(line, grammar.AlertKeywords) {
			observations = append(observations, line)
		}
	}
	ev.ClientObservation = strings.Join(observations, " ")

	return ev, nil
}

// NormalizePDF runs both grammar passes over the extracted text.
func NormalizePDF(text string, grammar Grammar) Result {
	groups, warnings := GroupLines(SplitLines(text))

	res := Result{Warnings: warnings}
	for _, g := range groups {
		ev, err := ExtractEvent(g, grammar)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("vehicle %s (line %d): %v", g.Start.Vehicle, g.Start.LineNo, err))
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res
}

func containsAny(line string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(line, n) {
			return true
		}
	}
	return false
}
