package smtp

import "fmt"

// ErrorKind is the closed set of transport failure classes. Callers branch
// on the kind; the raw server text is for internal logs only and must not
// reach end users.
type ErrorKind string

const (
	KindConnect  ErrorKind = "connect"
	KindGreeting ErrorKind = "unexpected_greeting"
	KindTLS      ErrorKind = "tls"
	KindAuth     ErrorKind = "auth"
	KindProtocol ErrorKind = "protocol"
	KindNetwork  ErrorKind = "network"
)

// ProtocolError carries the failed step, the server reply code (0 when the
// failure happened below the protocol, e.g. a timeout) and the raw server
// text. The transport never retries; the scheduler records the item failed.
type ProtocolError struct {
	Kind       ErrorKind
	Step       string
	Code       int
	ServerText string
}

func (e *ProtocolError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("smtp %s: %s: %d %s", e.Kind, e.Step, e.Code, e.ServerText)
	}
	return fmt.Sprintf("smtp %s: %s: %s", e.Kind, e.Step, e.ServerText)
}

func protocolErr(kind ErrorKind, step string, reply Reply) *ProtocolError {
	return &ProtocolError{Kind: kind, Step: step, Code: reply.Code, ServerText: reply.Text()}
}

func networkErr(step string, err error) *ProtocolError {
	return &ProtocolError{Kind: KindNetwork, Step: step, ServerText: err.Error()}
}
