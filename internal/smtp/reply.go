package smtp

import (
	"bufio"
	"fmt"
	"strings"
)

// Reply is one complete SMTP server response. A multi-line reply is a
// sequence of lines sharing the reply code, all but the last hyphenated
// after the code, terminated by a line with a space after the code.
type Reply struct {
	Code  int
	Lines []string
}

// Text joins the reply lines for logging and error reporting.
func (r Reply) Text() string {
	return strings.Join(r.Lines, "\n")
}

// framingError reports a reply violating the RFC 5321 line grammar, as
// opposed to a transport failure while reading it.
type framingError struct {
	msg string
}

func (e *framingError) Error() string { return e.msg }

func framingErrf(format string, args ...any) error {
	return &framingError{msg: fmt.Sprintf(format, args...)}
}

// ReadReply reads a single- or multi-line reply (RFC 5321 §4.2.1).
func ReadReply(br *bufio.Reader) (Reply, error) {
	var reply Reply
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return reply, err
		}
		line = strings.TrimRight(line, "\r\n")

		if len(line) < 3 {
			return reply, framingErrf("short reply line %q", line)
		}
		code := 0
		for i := 0; i < 3; i++ {
			ch := line[i]
			if ch < '0' || ch > '9' {
				return reply, framingErrf("malformed reply code in %q", line)
			}
			code = code*10 + int(ch-'0')
		}
		if reply.Code == 0 {
			reply.Code = code
		} else if code != reply.Code {
			return reply, framingErrf("reply code changed mid-reply: %d then %d", reply.Code, code)
		}

		// Fourth character: '-' continues the reply, space or absent ends it.
		if len(line) > 3 {
			reply.Lines = append(reply.Lines, line[4:])
			if line[3] == '-' {
				continue
			}
			if line[3] != ' ' {
				return reply, framingErrf("malformed reply separator in %q", line)
			}
		}
		return reply, nil
	}
}
