package atcmd

import "github.com/nohands-go/gonohands/internal/herr"

// maxLineLen is the maximum accepted line length, excluding the
// terminator (spec §6.1: "Maximum accepted line length is 511
// octets"; spec §4.2 "a 512-byte ring").
const maxLineLen = 511

// LineReader splits an inbound byte stream from the RFCOMM socket into
// CRLF/LF-terminated lines, skipping leading whitespace and blank
// lines, and flags oversize lines that never see a terminator as a
// protocol violation (spec §4.2 "Line buffering").
type LineReader struct {
	buf []byte
}

// NewLineReader creates an empty reader with the spec's 512-byte ring.
func NewLineReader() *LineReader {
	return &LineReader{buf: make([]byte, 0, maxLineLen+1)}
}

// Feed appends newly received bytes and returns every complete line
// extracted so far (blank lines and pure-whitespace lines are
// dropped, never returned). It returns a *herr.Error of kind
// ProtocolViolation if the accumulated, unterminated data exceeds
// maxLineLen octets.
func (r *LineReader) Feed(data []byte) ([]string, error) {
	var lines []string
	r.buf = append(r.buf, data...)
	for {
		idx := indexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		raw := r.buf[:idx]
		r.buf = r.buf[idx+1:]
		line := trimCR(raw)
		line = trimLeadingSpace(line)
		line = trimTrailingSpace(line)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, string(line))
	}
	if len(r.buf) > maxLineLen {
		return lines, herr.New(herr.ProtocolViolation, "atcmd",
			"oversize line without terminator", nil)
	}
	return lines, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func trimCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return b[i:]
}

func trimTrailingSpace(b []byte) []byte {
	j := len(b)
	for j > 0 && (b[j-1] == ' ' || b[j-1] == '\t' || b[j-1] == '\r') {
		j--
	}
	return b[:j]
}
