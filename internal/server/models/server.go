package models

import "strconv"

// ServerDescriptor is one news server connection target. Read-mostly: the
// connection pool owns live connections keyed by server and is the only
// component mutating health state.
type ServerDescriptor struct {
	ServerID       string
	Host           string
	Port           int
	TLS            bool
	Username       string
	Password       string
	MaxConnections int
	// Priority orders server selection, lower is preferred.
	Priority int
	Enabled  bool
}

// Addr returns the host:port dial target. A zero port falls back to the
// standard NNTP ports (119 plain, 563 TLS).
func (s *ServerDescriptor) Addr() string {
	port := s.Port
	if port == 0 {
		if s.TLS {
			port = 563
		} else {
			port = 119
		}
	}
	return s.Host + ":" + strconv.Itoa(port)
}
