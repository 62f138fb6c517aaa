package netbeans

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

var (
	reEvent   = regexp.MustCompile(`^\s*(\d+):(\S+)=(\d+)\s*(.*?)\s*$`)
	reReply   = regexp.MustCompile(`^\s*(\d+)\s*(.*?)\s*$`)
	reAuth    = regexp.MustCompile(`^\s*AUTH\s*(\S+)\s*$`)
	reLnumCol = regexp.MustCompile(`^(\d+)/(\d+)`)
)

// Message is a parsed inbound netbeans line: either an event sent by the
// editor or the reply to a function.
type Message struct {
	IsEvent bool

	// BufID is 0 for replies and for session-global events.
	BufID int

	// Name is the event name, empty for a reply.
	Name string

	// Seqno is the event sequence number (informational) or the sequence
	// number of the function being replied to.
	Seqno int

	// Str is the decoded netbeans string when HasStr is true.
	Str    string
	HasStr bool

	// Args are the remaining whitespace separated tokens.
	Args []string
}

// Parse parses one line, without its terminator, received from the editor.
// It returns an error wrapping ErrMalformed when the line is neither an event
// nor a reply.
func Parse(line string) (*Message, error) {
	m := &Message{}
	var seqno, args string
	if sm := reEvent.FindStringSubmatch(line); sm != nil {
		id, err := strconv.Atoi(sm[1])
		if err != nil {
			return nil, xerrors.Errorf("%w: bad buffer id in %q", ErrMalformed, line)
		}
		m.IsEvent = true
		m.BufID = id
		m.Name = sm[2]
		seqno, args = sm[3], sm[4]
	} else if sm := reReply.FindStringSubmatch(line); sm != nil {
		seqno, args = sm[1], sm[2]
	} else {
		return nil, xerrors.Errorf("%w: %q", ErrMalformed, line)
	}
	n, err := strconv.Atoi(seqno)
	if err != nil {
		return nil, xerrors.Errorf("%w: bad sequence number in %q", ErrMalformed, line)
	}
	m.Seqno = n

	if m.IsEvent && m.Name == "insert" {
		// insert carries the offset before the text
		off, rest := args, ""
		if i := strings.IndexFunc(args, isSpaceRune); i >= 0 {
			off, rest = args[:i], strings.TrimSpace(args[i:])
		}
		m.Args = strings.Fields(off)
		m.Str, m.HasStr, _ = parseString(rest, true)
		return m, nil
	}

	// keyAtPos and keyCommand strings have already been quoted by the
	// editor's own expression syntax; pass them through.
	unescape := !(m.Name == "keyAtPos" || m.Name == "keyCommand")
	var rest string
	m.Str, m.HasStr, rest = parseString(args, unescape)
	m.Args = strings.Fields(rest)
	return m, nil
}

// parseString extracts a leading netbeans string from args. The string runs
// to the last double quote in args. rest is what follows the string, or all
// of args when there is no string.
func parseString(args string, unescape bool) (str string, ok bool, rest string) {
	if !strings.HasPrefix(args, `"`) {
		return "", false, args
	}
	end := strings.LastIndexByte(args, '"')
	if end <= 0 {
		return "", false, args
	}
	str = args[1:end]
	if unescape {
		str = Unquote(str)
	}
	return str, true, args[end+1:]
}

// parseLnumCol decodes a "lnum/col" token.
func parseLnumCol(s string) (lnum, col int, ok bool) {
	sm := reLnumCol.FindStringSubmatch(s)
	if sm == nil {
		return 0, 0, false
	}
	var err1, err2 error
	lnum, err1 = strconv.Atoi(sm[1])
	col, err2 = strconv.Atoi(sm[2])
	return lnum, col, err1 == nil && err2 == nil
}

func isSpaceRune(r rune) bool {
	return r < 0x80 && isSpace(byte(r))
}
