package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/utils"
)

// classify turns a driver failure into a typed store error. ctx is the
// per-query context so deadline expiry wins over whatever the driver reported.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var typed *archerr.Error
	if errors.As(err, &typed) {
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return archerr.Wrap(archerr.StoreTimeout, err, "query exceeded its deadline")
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return archerr.Wrap(archerr.StoreTimeout, err, "query abandoned before completion")
	}

	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		return archerr.Wrap(archerr.StoreQueryFailed, err, "store rejected query")
	}

	if errors.Is(err, utils.ErrCircuitOpen) {
		return archerr.Wrap(archerr.StoreUnavailable, err, "store marked unavailable after repeated failures")
	}
	if errors.Is(err, utils.ErrPoolExhausted) {
		return archerr.Wrap(archerr.StoreUnavailable, err, "no store connection available")
	}
	if isConnectionFailure(err) {
		return archerr.Wrap(archerr.StoreUnavailable, err, "cannot reach store")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return archerr.Wrap(archerr.StoreTimeout, err, "store did not respond in time")
	}
	return archerr.Wrap(archerr.StoreQueryFailed, err, "query failed")
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || !opErr.Timeout()
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// retryable reports whether a classified error may be retried once.
func retryable(err error) bool {
	return archerr.Is(err, archerr.StoreUnavailable)
}
