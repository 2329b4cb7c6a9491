package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Signature is an author/committer/tagger identity with the timestamp and
// timezone offset it acted at. Both round-trip exactly: the offset is
// stored as signed minutes from UTC, not reconstructed from a *time.Time
// (which would lose the original zone on some platforms).
type Signature struct {
	Name           string
	Email          string
	When           int64 // epoch seconds
	TZOffsetMinutes int  // e.g. -420 for -0700
}

// String renders "Name <email> <epochSec> ±HHMM", Git's single-line
// signature format.
func (s Signature) String() string {
	sign := "+"
	off := s.TZOffsetMinutes
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("%s <%s> %d %s%02d%02d", s.Name, s.Email, s.When, sign, off/60, off%60)
}

// ParseSignature parses a single signature line in the format produced by
// String.
func ParseSignature(line string) (Signature, error) {
	var sig Signature

	lt := strings.IndexByte(line, '<')
	gt := strings.IndexByte(line, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return sig, fmt.Errorf("object: malformed signature %q", line)
	}
	sig.Name = strings.TrimSpace(line[:lt])
	sig.Email = line[lt+1 : gt]

	rest := strings.TrimSpace(line[gt+1:])
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return sig, fmt.Errorf("object: malformed signature timestamp %q", line)
	}

	when, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return sig, fmt.Errorf("object: malformed signature epoch %q", fields[0])
	}
	sig.When = when

	tz := fields[1]
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return sig, fmt.Errorf("object: malformed signature timezone %q", tz)
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return sig, fmt.Errorf("object: malformed signature timezone %q", tz)
	}
	offset := hh*60 + mm
	if tz[0] == '-' {
		offset = -offset
	}
	sig.TZOffsetMinutes = offset

	return sig, nil
}

// splitHeaderLine splits "key value" on the first space, as used by every
// header line in a commit/tag frame.
func splitHeaderLine(line []byte) (key, value string, ok bool) {
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return "", "", false
	}
	return string(line[:sp]), string(line[sp+1:]), true
}
