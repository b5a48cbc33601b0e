package control

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// sniffTimeout bounds how long a new connection may stay silent before cmux
// gives up classifying it.
const sniffTimeout = 5 * time.Second

// ServeTCP splits ln between gs (HTTP/2 with a gRPC content type) and h
// (HTTP/1). It blocks until ctx is cancelled or a listener fails, and stops
// both servers before returning.
func ServeTCP(ctx context.Context, ln net.Listener, gs *grpc.Server, h http.Handler) error {
	m := cmux.New(ln)
	m.SetReadTimeout(sniffTimeout)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldPrefixSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.HTTP1Fast())

	hs := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreClosed(gs.Serve(grpcL)) })
	g.Go(func() error { return ignoreClosed(hs.Serve(httpL)) })
	g.Go(func() error { return ignoreClosed(m.Serve()) })
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		_ = hs.Close()
		gs.Stop()
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func ignoreClosed(err error) error {
	switch {
	case err == nil,
		errors.Is(err, net.ErrClosed),
		errors.Is(err, http.ErrServerClosed),
		errors.Is(err, cmux.ErrListenerClosed),
		errors.Is(err, cmux.ErrServerClosed),
		errors.Is(err, grpc.ErrServerStopped):
		return nil
	}
	return err
}
