package nntp

import (
	"bytes"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// scriptedServer speaks just enough NNTP for one client connection:
// greeting, AUTHINFO, POST, ARTICLE, DATE, QUIT. Posted articles are kept
// in memory keyed by message id.
type scriptedServer struct {
	listener net.Listener
	articles map[string][]byte
	authed   bool
	wantUser string
	wantPass string
}

func startScriptedServer(t *testing.T, wantUser, wantPass string) *scriptedServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &scriptedServer{listener: l, articles: make(map[string][]byte), wantUser: wantUser, wantPass: wantPass}
	go s.serve()
	t.Cleanup(func() { l.Close() })
	return s
}

func (s *scriptedServer) addr() (string, int) {
	a := s.listener.Addr().(*net.TCPAddr)
	return a.IP.String(), a.Port
}

func (s *scriptedServer) serve() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(textproto.NewConn(nc))
	}
}

func (s *scriptedServer) handle(c *textproto.Conn) {
	defer c.Close()
	c.PrintfLine("200 scripted server ready")
	for {
		line, err := c.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "AUTHINFO":
			switch strings.ToUpper(fields[1]) {
			case "USER":
				if fields[2] == s.wantUser {
					c.PrintfLine("381 password required")
				} else {
					c.PrintfLine("481 authentication failed")
				}
			case "PASS":
				if fields[2] == s.wantPass {
					s.authed = true
					c.PrintfLine("281 authentication accepted")
				} else {
					c.PrintfLine("481 authentication failed")
				}
			}
		case "POST":
			c.PrintfLine("340 send article")
			article, err := c.ReadDotBytes()
			if err != nil {
				return
			}
			id := extractMessageID(article)
			s.articles[id] = article
			c.PrintfLine("240 article received")
		case "ARTICLE":
			article, ok := s.articles[fields[1]]
			if !ok {
				c.PrintfLine("430 no such article")
				continue
			}
			c.PrintfLine("220 0 %s article", fields[1])
			w := c.DotWriter()
			w.Write(article)
			w.Close()
		case "DATE":
			c.PrintfLine("111 20260831120000")
		case "QUIT":
			c.PrintfLine("205 goodbye")
			return
		default:
			c.PrintfLine("500 unknown command")
		}
	}
}

func extractMessageID(article []byte) string {
	for _, line := range strings.Split(string(article), "\n") {
		line = strings.TrimRight(line, "\r")
		if rest, ok := strings.CutPrefix(line, "Message-ID: "); ok {
			return rest
		}
	}
	return ""
}

func dialScripted(t *testing.T, s *scriptedServer, user, pass string) *Conn {
	t.Helper()
	host, port := s.addr()
	conn, err := Dial(t.Context(), &models.ServerDescriptor{
		Host: host, Port: port, Username: user, Password: pass,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConn_PostAndRetrieve(t *testing.T) {
	s := startScriptedServer(t, "", "")
	conn := dialScripted(t, s, "", "")

	payload := common.GenerateRandByteArray(4096)
	id, err := NewMessageID()
	if err != nil {
		t.Fatalf("message id: %v", err)
	}

	if err := conn.Post(BuildArticle(id, "alt.binaries.test", "seg", payload)); err != nil {
		t.Fatalf("post: %v", err)
	}

	article, err := conn.Article(id)
	if err != nil {
		t.Fatalf("article: %v", err)
	}
	got, err := ParseArticle(article)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload differs after post/retrieve round trip")
	}
}

func TestConn_ArticleNotFound(t *testing.T) {
	s := startScriptedServer(t, "", "")
	conn := dialScripted(t, s, "", "")

	_, err := conn.Article("<missing@usenetsync>")
	if !errors.Is(err, common.ErrArticleNotFound) {
		t.Fatalf("want ErrArticleNotFound, got %v", err)
	}

	// The connection must stay usable after a 430.
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping after 430: %v", err)
	}
}

func TestConn_Authentication(t *testing.T) {
	s := startScriptedServer(t, "user", "pass")

	conn := dialScripted(t, s, "user", "pass")
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !s.authed {
		t.Errorf("server did not record authentication")
	}
}

func TestConn_AuthenticationRejected(t *testing.T) {
	s := startScriptedServer(t, "user", "pass")
	host, port := s.addr()

	_, err := Dial(t.Context(), &models.ServerDescriptor{
		Host: host, Port: port, Username: "user", Password: "wrong",
	})
	if err == nil {
		t.Fatalf("expected authentication error")
	}
}
