package proxy

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"cachefs/internal/util"
	"cachefs/internal/wire"
)

// rpcClient wraps wire.Client with a bounded dial retry, grounded in
// internal/util.Retry's backoff pattern. Only the dial itself is retried --
// once a request has been sent and answered, the result is final, matching
// spec §7's "none of Validate/Upload/Download are retried internally".
type rpcClient struct {
	wire *wire.Client
}

func newRPCClient(addr string) *rpcClient {
	return &rpcClient{wire: wire.NewClient(addr)}
}

func (c *rpcClient) call(op wire.Op, args, out any) error {
	opts := []retry.Option{
		retry.Attempts(3),
		retry.Delay(50 * time.Millisecond),
		retry.MaxDelay(250 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isDialError),
		retry.Context(context.Background()),
	}
	return util.Retry(context.Background(), func() error {
		return c.wire.Call(op, args, out)
	}, opts...)
}

// isDialError reports whether err looks like it failed before a request
// ever reached the server (connection refused, no route, timeout) rather
// than a server-observed failure, which must never be retried.
func isDialError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok {
		if opErr, isOp := netErr.(*net.OpError); isOp {
			return opErr.Op == "dial"
		}
		return true
	}
	return strings.Contains(err.Error(), "wire: dial")
}

func asNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
