// Package gows is a lightweight WebSocket server library: a TCP accept
// loop with cooperative cancellation, a hand-rolled RFC 6455 HTTP/1.1
// upgrade handshake, and a per-connection receive pipeline that reassembles
// fragmented frames into whole messages and hands them to the application
// as a cancellable, pull-based sequence.
//
// A minimal server looks like:
//
//	srv := gows.NewServer(":8080")
//	srv.Start(func(upCtx *gows.UpgradeContext) {
//		conn, err := upCtx.Accept()
//		if err != nil {
//			return
//		}
//		for msg := range conn.Messages(context.Background()) {
//			if msg.Kind == gows.Text {
//				conn.SendText(msg.Text())
//			}
//		}
//	})
package gows
