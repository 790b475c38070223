package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/initiative/internal/watch"
)

const watchWriteTimeout = 5 * time.Second

// watchLive upgrades to a websocket and pushes a WatchMessage whenever the
// live encounter changes. Each socket runs its own server-side poller, so a
// push client converges exactly as a polling client would, only sooner.
func (h *handler) watchLive(c *gin.Context) {
	// The socket outlives the server's per-request write deadline.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Clients never send; CloseRead handles control frames and cancels ctx on close.
	ctx := conn.CloseRead(c.Request.Context())

	latest := make(chan watch.Snapshot, 1)
	p := watch.NewPoller(watch.LiveFetcher(h.svc),
		watch.WithInterval(h.opts.PollInterval),
		watch.WithFailureThreshold(h.opts.FailureThreshold),
		watch.WithLogger(h.logger.With(zap.String("observer", "websocket"))),
		watch.OnUpdate(func(s watch.Snapshot) {
			// Keep only the newest snapshot; callbacks are serialized.
			select {
			case latest <- s:
			default:
				select {
				case <-latest:
				default:
				}
				latest <- s
			}
		}),
	)

	pollCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(pollCtx)
	}()
	defer func() {
		stop()
		<-done
	}()

	var last []byte
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-latest:
			msg := WatchMessage{}
			if snap.Encounter != nil {
				v := NewEncounterView(snap.Encounter)
				msg.Encounter = &v
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("encoding watch frame", zap.Error(err))
				return
			}
			if bytes.Equal(payload, last) {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				h.logger.Debug("watch client gone", zap.Error(err))
				return
			}
			last = payload
		}
	}
}
