package gows

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/panjf2000/ants/v2"
)

// acceptLoop is the dedicated task described in §4.4: race the listener's
// Accept against ctx, spawn a fire-and-forget handshake task for every
// accepted connection, and keep going. Transient Accept errors (too many
// open files, ECONNRESET during accept, ...) are logged and swallowed;
// only ctx cancellation or the listener being closed ends the loop.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, pool *ants.Pool, handler HandshakeHandler) {
	defer s.wg.Done()
	defer pool.Release()

	for {
		rawConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if isPermanent(err) {
				return
			}
			s.logger.Errorf("accept: %s", err)
			continue
		}

		submitErr := pool.Submit(func() {
			s.runHandshake(rawConn, handler)
		})
		if submitErr != nil {
			s.logger.Errorf("handshake pool saturated, dropping connection: %s", submitErr)
			rawConn.Close()
		}
	}
}

// isPermanent reports whether err from Accept means the listener itself is
// gone (as opposed to a transient per-connection failure that the loop
// should shrug off and keep accepting after).
func isPermanent(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// runHandshake is the per-connection handshake pipeline (C2+C3): parse the
// request head and build the UpgradeContext. This is the only part of a
// connection's life bounded by the handshake pool — per §4.4/§5, handshake
// and message receiving run on their own task, and the application handler
// typically ranges over conn.Messages(ctx) for as long as the connection
// stays open, so it must not hold a pool worker for that whole lifetime.
// Once the request head is parsed, the handler runs on its own unbounded
// goroutine (runHandler) and this pool worker is released immediately.
func (s *Server) runHandshake(rawConn net.Conn, handler HandshakeHandler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("handshake parsing panicked: %v", r)
			rawConn.Close()
		}
	}()

	var rw io.ReadWriter = rawConn
	if s.streamDecorator != nil {
		decorated, err := s.streamDecorator(rw)
		if err != nil {
			s.logger.Errorf("stream decorator: %s", err)
			rawConn.Close()
			return
		}
		rw = decorated
	}

	raw, headers, leftover, err := readRequestHead(rw)
	if err != nil {
		s.logger.Debugf("handshake from %s: %s", rawConn.RemoteAddr(), err)
		rawConn.Close()
		return
	}
	rw = withLeftover(rw, leftover)
	if headers.Get("Sec-WebSocket-Key") == "" {
		s.logger.Debugf("handshake from %s: %s", rawConn.RemoteAddr(), ErrMalformedUpgrade)
		rawConn.Close()
		return
	}

	req := &UpgradeRequest{
		Raw:        raw,
		Headers:    headers,
		RemoteAddr: rawConn.RemoteAddr().String(),
		stream:     rw,
	}
	upCtx := newUpgradeContext(rawConn, req)

	s.mu.Lock()
	keeper := s.keeper
	s.mu.Unlock()
	if keeper != nil {
		upCtx.onAccept = keeper.track
	}

	go s.runHandler(upCtx, handler, keeper)
}

// runHandler invokes the application's handshake handler on its own
// goroutine, outside the bounded handshake pool, then enforces the
// exactly-once accept/reject contract once the handler returns. Nothing
// that happens in here is allowed to propagate back to the accept loop.
func (s *Server) runHandler(upCtx *UpgradeContext, handler HandshakeHandler, keeper *keepAliveTicker) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("handshake handler panicked: %v", r)
			upCtx.rawConn.Close()
		}
	}()

	handler(upCtx)

	if conn := upCtx.AcceptedConn(); conn != nil {
		// The handler owns the Conn's lifetime while it runs (typically by
		// ranging over conn.Messages(ctx) until the sequence ends); once
		// the handler call above has returned, the application is done
		// with it, so make Close idempotent-safe cleanup here too.
		if keeper != nil {
			keeper.untrack(conn)
		}
		conn.Close()
		return
	}
	upCtx.implicitReject()
}
