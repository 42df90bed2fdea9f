package hfp

import (
	"strconv"
	"strings"
)

// afterColon removes a label prefix like "+BRSF:" and any
// following whitespace; all of §4.4's wire forms are "space-tolerant".
func afterColon(line string) (string, bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[idx+1:]), true
}

// parseBRSF parses "+BRSF: <ag-features>" (spec §4.3 step 1).
func parseBRSF(line string) (uint32, bool) {
	rest, ok := afterColon(line)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// parseChldTest parses "+CHLD: (0,1,1x,2,2x,3,4)"-shaped lines,
// expanding numeric ranges like "2-3" into individual plain
// capabilities (spec §8 boundary behavior: "(0,1,1x,2-3)" yields
// {0,1,1x,2,3}).
func parseChldTest(line string) ChldCapSet {
	rest, ok := afterColon(line)
	if !ok {
		return nil
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	caps := ChldCapSet{}
	for _, tok := range strings.Split(rest, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.HasSuffix(tok, "x") {
			n, err := strconv.Atoi(strings.TrimSuffix(tok, "x"))
			if err != nil {
				continue
			}
			if c, ok := chldCapFromX(n); ok {
				caps[c] = true
			}
			continue
		}
		if strings.Contains(tok, "-") {
			parts := strings.SplitN(tok, "-", 2)
			lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 != nil || err2 != nil {
				continue
			}
			for n := lo; n <= hi; n++ {
				if c, ok := chldCapFromPlain(n); ok {
					caps[c] = true
				}
			}
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if c, ok := chldCapFromPlain(n); ok {
			caps[c] = true
		}
	}
	return caps
}

func chldCapFromPlain(n int) (ChldCap, bool) {
	switch n {
	case 0:
		return Chld0, true
	case 1:
		return Chld1, true
	case 2:
		return Chld2, true
	case 3:
		return Chld3, true
	case 4:
		return Chld4, true
	default:
		return 0, false
	}
}

func chldCapFromX(n int) (ChldCap, bool) {
	switch n {
	case 1:
		return Chld1x, true
	case 2:
		return Chld2x, true
	default:
		return 0, false
	}
}

// parseCindTest parses the AT+CIND=? test response, e.g.
//
//	+CIND: ("service",(0,1)),("call",(0,1)),("callsetup",(0-3)), ...
//
// into the ordered list of indicator names (spec §4.3 step 3).
func parseCindTest(line string) []string {
	rest, ok := afterColon(line)
	if !ok {
		return nil
	}
	var names []string
	inQuote := false
	var cur strings.Builder
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if ch == '"' {
			if inQuote {
				names = append(names, cur.String())
				cur.Reset()
			}
			inQuote = !inQuote
			continue
		}
		if inQuote {
			cur.WriteByte(ch)
		}
	}
	return names
}

// canonicalIndicatorName normalizes the handful of spellings the spec
// recognizes (spec §4.3 step 3: "callsetup (or call_setup)").
func canonicalIndicatorName(name string) string {
	if name == "call_setup" {
		return "callsetup"
	}
	return name
}

// parseCindRead parses "+CIND: 1,0,0,4,0,3" into ordered integer
// values (spec §4.3 step 7).
func parseCindRead(line string) []int {
	rest, ok := afterColon(line)
	if !ok {
		return nil
	}
	parts := strings.Split(rest, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			out = append(out, 0)
			continue
		}
		out = append(out, v)
	}
	return out
}

// parseCIEV parses "+CIEV: <index>,<value>" (spec §4.4).
func parseCIEV(line string) (index, value int, ok bool) {
	rest, ok := afterColon(line)
	if !ok {
		return 0, 0, false
	}
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	idx, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	val, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return idx, val, true
}

// parseCLIP parses
//
//	+CLIP: <number>[,<type>[,<subaddr>[,<satype>[,<alpha>[,<validity>]]]]]
//
// (spec §3 "Calling Line Identity", §4.4).
func parseCLIP(line string) (CallingLineIdentity, bool) {
	rest, ok := afterColon(line)
	if !ok {
		return CallingLineIdentity{}, false
	}
	fields := splitQuotedCSV(rest)
	if len(fields) == 0 {
		return CallingLineIdentity{}, false
	}
	var cli CallingLineIdentity
	cli.Number = unquote(fields[0])
	if len(fields) > 1 {
		cli.Type, _ = strconv.Atoi(strings.TrimSpace(fields[1]))
	}
	if len(fields) > 2 {
		cli.Subaddress = unquote(fields[2])
	}
	if len(fields) > 3 {
		cli.SubaddrType, _ = strconv.Atoi(strings.TrimSpace(fields[3]))
	}
	if len(fields) > 4 {
		cli.Alpha = unquote(fields[4])
	}
	if len(fields) > 5 {
		cli.Validity, _ = strconv.Atoi(strings.TrimSpace(fields[5]))
	}
	return cli, true
}

// parseCCWA parses "+CCWA: <number>,<type>,<class>,<alpha>,<validity>"
// (spec §4.4). The returned CallingLineIdentity carries the waiting
// call's identity; class is returned separately since it has no CLIP
// analogue.
func parseCCWA(line string) (cli CallingLineIdentity, class int, ok bool) {
	rest, ok := afterColon(line)
	if !ok {
		return CallingLineIdentity{}, 0, false
	}
	fields := splitQuotedCSV(rest)
	if len(fields) == 0 {
		return CallingLineIdentity{}, 0, false
	}
	cli.Number = unquote(fields[0])
	if len(fields) > 1 {
		cli.Type, _ = strconv.Atoi(strings.TrimSpace(fields[1]))
	}
	if len(fields) > 2 {
		class, _ = strconv.Atoi(strings.TrimSpace(fields[2]))
	}
	if len(fields) > 3 {
		cli.Alpha = unquote(fields[3])
	}
	if len(fields) > 4 {
		cli.Validity, _ = strconv.Atoi(strings.TrimSpace(fields[4]))
	}
	return cli, class, true
}

// parseCNUM parses "+CNUM: <alpha>,<number>,<type>[,<speed>,<service>]"
// (3GPP TS 27.007 §7.18, spec §4.5 "AT+CNUM"). Unlike CLIP/CCWA, the
// alpha tag comes before the number.
func parseCNUM(line string) (CallingLineIdentity, bool) {
	rest, ok := afterColon(line)
	if !ok {
		return CallingLineIdentity{}, false
	}
	fields := splitQuotedCSV(rest)
	if len(fields) < 2 {
		return CallingLineIdentity{}, false
	}
	var cli CallingLineIdentity
	cli.Alpha = unquote(fields[0])
	cli.Number = unquote(fields[1])
	if len(fields) > 2 {
		cli.Type, _ = strconv.Atoi(strings.TrimSpace(fields[2]))
	}
	return cli, true
}

// parseVolume parses a bare "+VGS: <0-15>" / "+VGM: <0-15>" line.
func parseVolume(line string) (int, bool) {
	rest, ok := afterColon(line)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return v, true
}

// splitQuotedCSV splits a comma-separated list, respecting
// double-quoted fields that may themselves contain commas.
func splitQuotedCSV(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			inQuote = !inQuote
			cur.WriteByte(ch)
		case ch == ',' && !inQuote:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	fields = append(fields, cur.String())
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
