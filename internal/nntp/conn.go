// Package nntp implements the client side of the NNTP protocol needed for
// file transport (POST and ARTICLE plus authentication) together with the
// per-server connection pool and the shared bandwidth governor.
package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// Transport is the protocol surface workers consume. *Conn implements it;
// tests substitute fakes through the pool's dial seam.
type Transport interface {
	// Post submits a complete article and returns nil once the server
	// accepted it.
	Post(article []byte) error
	// Article retrieves an article by message id. A missing or expired
	// article is reported as common.ErrArticleNotFound.
	Article(messageID string) ([]byte, error)
	// Ping runs a lightweight protocol round trip (DATE).
	Ping() error
	Close() error
}

// Conn is one authenticated NNTP connection.
type Conn struct {
	text   *textproto.Conn
	server *models.ServerDescriptor
}

// Dial connects to the server, negotiates TLS when configured and
// authenticates via AUTHINFO when credentials are present.
func Dial(ctx context.Context, server *models.ServerDescriptor) (*Conn, error) {
	d := &net.Dialer{}
	nc, err := d.DialContext(ctx, "tcp", server.Addr())
	if err != nil {
		return nil, common.NewTransientError(fmt.Errorf("dial %s: %w", server.Addr(), err))
	}
	if server.TLS {
		tc := tls.Client(nc, &tls.Config{ServerName: server.Host})
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, common.NewTransientError(fmt.Errorf("tls handshake %s: %w", server.Addr(), err))
		}
		nc = tc
	}

	conn := &Conn{text: textproto.NewConn(nc), server: server}

	// Greeting: 200 (posting allowed) or 201 (read-only).
	if _, _, err := conn.text.ReadCodeLine(20); err != nil {
		conn.text.Close()
		return nil, common.NewTransientError(fmt.Errorf("greeting from %s: %w", server.Addr(), err))
	}

	if server.Username != "" {
		if err := conn.authenticate(); err != nil {
			conn.text.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (c *Conn) authenticate() error {
	if _, _, err := c.cmd(381, "AUTHINFO USER %s", c.server.Username); err != nil {
		return common.NewTransientError(fmt.Errorf("authinfo user: %w", err))
	}
	if _, _, err := c.cmd(281, "AUTHINFO PASS %s", c.server.Password); err != nil {
		return common.NewTransientError(fmt.Errorf("authinfo pass: %w", err))
	}
	return nil
}

func (c *Conn) cmd(expectCode int, format string, args ...any) (int, string, error) {
	id, err := c.text.Cmd(format, args...)
	if err != nil {
		return 0, "", err
	}
	c.text.StartResponse(id)
	defer c.text.EndResponse(id)
	return c.text.ReadCodeLine(expectCode)
}

// Post implements Transport. The article must be a complete rendering
// including headers; dot-stuffing is handled by the text protocol writer.
func (c *Conn) Post(article []byte) error {
	if _, _, err := c.cmd(340, "POST"); err != nil {
		return common.NewTransientError(fmt.Errorf("post: %w", err))
	}
	w := c.text.DotWriter()
	if _, err := w.Write(article); err != nil {
		w.Close()
		return common.NewTransientError(fmt.Errorf("post write: %w", err))
	}
	if err := w.Close(); err != nil {
		return common.NewTransientError(fmt.Errorf("post flush: %w", err))
	}
	if _, _, err := c.text.ReadCodeLine(240); err != nil {
		return common.NewTransientError(fmt.Errorf("post accept: %w", err))
	}
	return nil
}

// Article implements Transport. Responds with the raw article bytes
// (headers and body) for the given message id.
func (c *Conn) Article(messageID string) ([]byte, error) {
	id, err := c.text.Cmd("ARTICLE %s", messageID)
	if err != nil {
		return nil, common.NewTransientError(fmt.Errorf("article: %w", err))
	}
	c.text.StartResponse(id)
	defer c.text.EndResponse(id)

	if _, _, err := c.text.ReadCodeLine(220); err != nil {
		var pe *textproto.Error
		// 430: no article with that message id.
		if errors.As(err, &pe) && pe.Code == 430 {
			return nil, common.ErrArticleNotFound
		}
		return nil, common.NewTransientError(fmt.Errorf("article %s: %w", messageID, err))
	}
	body, err := io.ReadAll(c.text.DotReader())
	if err != nil {
		return nil, common.NewTransientError(fmt.Errorf("article read: %w", err))
	}
	return body, nil
}

// Ping implements Transport using DATE, which every server supports and
// which does not disturb reader state.
func (c *Conn) Ping() error {
	if _, _, err := c.cmd(111, "DATE"); err != nil {
		return common.NewTransientError(fmt.Errorf("ping: %w", err))
	}
	return nil
}

// Close sends QUIT and closes the underlying connection.
func (c *Conn) Close() error {
	// Best effort: the server closing first is not an error worth surfacing.
	_, _, _ = c.cmd(205, "QUIT")
	return c.text.Close()
}
