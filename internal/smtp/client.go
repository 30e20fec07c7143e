// Package smtp implements the outbound SMTP wire transport: a minimal
// client state machine over a raw connection, one fresh connection per
// message so no protocol state leaks between deliveries.
package smtp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mailcast/mailcast-backend/internal/model"
)

const defaultTimeout = 30 * time.Second

// Sender dials a user-supplied mail server and performs one delivery.
type Sender struct {
	// LocalName is the identity announced in EHLO.
	LocalName string
	// Timeout bounds every network step individually.
	Timeout time.Duration
	// TLSConfig overrides the TLS client configuration; nil verifies the
	// server certificate against the credential host.
	TLSConfig *tls.Config
}

type conn struct {
	nc      net.Conn
	br      *bufio.Reader
	timeout time.Duration
}

// Deliver runs the full protocol sequence: greeting, EHLO, optional TLS
// negotiation, AUTH, MAIL/RCPT/DATA, QUIT. The connection is closed on
// every exit path. msg must already be CRLF-framed and dot-stuffed.
func (s *Sender) Deliver(ctx context.Context, cred *model.SmtpCredential, from, to string, msg []byte) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	dialer := &net.Dialer{Timeout: timeout}
	nc, err := dialer.DialContext(ctx, "tcp", cred.Addr())
	if err != nil {
		return &ProtocolError{Kind: KindConnect, Step: "dial", ServerText: err.Error()}
	}

	c := &conn{nc: nc, br: bufio.NewReader(nc), timeout: timeout}
	defer func() { c.nc.Close() }()

	tlsCfg := s.tlsConfig(cred.Host)

	// Implicit TLS wraps the connection before the first byte.
	if cred.Encryption == model.EncryptionTLS {
		tc := tls.Client(nc, tlsCfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			return &ProtocolError{Kind: KindTLS, Step: "handshake", ServerText: err.Error()}
		}
		c.nc = tc
		c.br = bufio.NewReader(tc)
	}

	reply, err := c.read("greeting")
	if err != nil {
		return err
	}
	if reply.Code != 220 {
		return protocolErr(KindGreeting, "greeting", reply)
	}

	if err := c.ehlo(s.localName()); err != nil {
		return err
	}

	if cred.Encryption == model.EncryptionStartTLS {
		reply, err := c.cmd("starttls", "STARTTLS")
		if err != nil {
			return err
		}
		if reply.Code != 220 {
			return protocolErr(KindTLS, "starttls", reply)
		}
		tc := tls.Client(c.nc, tlsCfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			return &ProtocolError{Kind: KindTLS, Step: "starttls handshake", ServerText: err.Error()}
		}
		// In-place upgrade: the old reader may hold buffered plaintext,
		// discard it with the old connection.
		c.nc = tc
		c.br = bufio.NewReader(tc)

		if err := c.ehlo(s.localName()); err != nil {
			return err
		}
	}

	if cred.Username != "" {
		if err := c.auth(cred.Username, cred.Password); err != nil {
			return err
		}
	}

	reply, err = c.cmd("mail", "MAIL FROM:<%s>", from)
	if err != nil {
		return err
	}
	if reply.Code != 250 {
		return protocolErr(KindProtocol, "mail", reply)
	}

	reply, err = c.cmd("rcpt", "RCPT TO:<%s>", to)
	if err != nil {
		return err
	}
	if reply.Code != 250 && reply.Code != 251 {
		return protocolErr(KindProtocol, "rcpt", reply)
	}

	reply, err = c.cmd("data", "DATA")
	if err != nil {
		return err
	}
	if reply.Code != 354 {
		return protocolErr(KindProtocol, "data", reply)
	}

	if err := c.writeMessage(msg); err != nil {
		return err
	}
	reply, err = c.read("data body")
	if err != nil {
		return err
	}
	if reply.Code != 250 {
		return protocolErr(KindProtocol, "data body", reply)
	}

	reply, err = c.cmd("quit", "QUIT")
	if err != nil {
		return err
	}
	if reply.Code != 221 {
		return protocolErr(KindProtocol, "quit", reply)
	}
	return nil
}

func (s *Sender) localName() string {
	if s.LocalName != "" {
		return s.LocalName
	}
	return "localhost"
}

func (s *Sender) tlsConfig(host string) *tls.Config {
	if s.TLSConfig != nil {
		return s.TLSConfig
	}
	return &tls.Config{ServerName: host}
}

func (c *conn) ehlo(localName string) error {
	reply, err := c.cmd("ehlo", "EHLO %s", localName)
	if err != nil {
		return err
	}
	if reply.Code != 250 {
		return protocolErr(KindProtocol, "ehlo", reply)
	}
	return nil
}

// auth tries AUTH LOGIN first and falls back to AUTH PLAIN when the server
// rejects the mechanism itself (RFC 4954).
func (c *conn) auth(username, password string) error {
	reply, err := c.cmd("auth", "AUTH LOGIN")
	if err != nil {
		return err
	}

	switch reply.Code {
	case 334:
		reply, err = c.cmd("auth username", "%s", base64.StdEncoding.EncodeToString([]byte(username)))
		if err != nil {
			return err
		}
		if reply.Code != 334 {
			return protocolErr(KindAuth, "auth username", reply)
		}
		reply, err = c.cmd("auth password", "%s", base64.StdEncoding.EncodeToString([]byte(password)))
		if err != nil {
			return err
		}
		if reply.Code != 235 {
			return protocolErr(KindAuth, "auth password", reply)
		}
		return nil

	case 500, 502, 504:
		// LOGIN not supported, try the SASL-PLAIN blob.
		blob := base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
		reply, err = c.cmd("auth plain", "AUTH PLAIN %s", blob)
		if err != nil {
			return err
		}
		if reply.Code != 235 {
			return protocolErr(KindAuth, "auth plain", reply)
		}
		return nil

	default:
		return protocolErr(KindAuth, "auth", reply)
	}
}

// writeMessage transmits the message body and the terminating dot line.
func (c *conn) writeMessage(msg []byte) error {
	if err := c.setDeadline(); err != nil {
		return networkErr("data body", err)
	}
	if _, err := c.nc.Write(msg); err != nil {
		return networkErr("data body", err)
	}
	tail := ".\r\n"
	if !bytes.HasSuffix(msg, []byte("\r\n")) {
		tail = "\r\n.\r\n"
	}
	if _, err := c.nc.Write([]byte(tail)); err != nil {
		return networkErr("data body", err)
	}
	return nil
}

func (c *conn) cmd(step, format string, args ...any) (Reply, error) {
	if err := c.setDeadline(); err != nil {
		return Reply{}, networkErr(step, err)
	}
	line := fmt.Sprintf(format, args...)
	if _, err := c.nc.Write([]byte(line + "\r\n")); err != nil {
		return Reply{}, networkErr(step, err)
	}
	return c.read(step)
}

func (c *conn) read(step string) (Reply, error) {
	if err := c.setDeadline(); err != nil {
		return Reply{}, networkErr(step, err)
	}
	reply, err := ReadReply(c.br)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return reply, networkErr(step, err)
		}
		var fe *framingError
		if errors.As(err, &fe) {
			// The server answered but violated the reply grammar.
			return reply, &ProtocolError{Kind: KindProtocol, Step: step, Code: reply.Code, ServerText: err.Error()}
		}
		return reply, networkErr(step, err)
	}
	return reply, nil
}

func (c *conn) setDeadline() error {
	return c.nc.SetDeadline(time.Now().Add(c.timeout))
}
