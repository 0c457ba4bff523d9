package transfer

import (
	"context"

	"github.com/dmitrijs2005/usenetsync/internal/nntp"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// PooledConn is one acquired news server connection.
type PooledConn interface {
	Transport() nntp.Transport
	Server() *models.ServerDescriptor
}

// Pool is the slice of the connection pool workers use: acquire/release
// plus the shared bandwidth ceiling.
type Pool interface {
	Acquire(ctx context.Context, exclude ...string) (PooledConn, error)
	Release(pc PooledConn, opErr error)
	Throttle(ctx context.Context, n int) error
}

// NNTPPool adapts *nntp.Pool to the Pool interface.
type NNTPPool struct {
	*nntp.Pool
}

func (p NNTPPool) Acquire(ctx context.Context, exclude ...string) (PooledConn, error) {
	pc, err := p.Pool.Acquire(ctx, exclude...)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (p NNTPPool) Release(pc PooledConn, opErr error) {
	p.Pool.Release(pc.(*nntp.PooledConn), opErr)
}
