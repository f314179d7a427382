package sse

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler returns a gin handler that streams a Bus subscription to the
// client as Server-Sent Events until the client disconnects. Each
// BroadcastEvent is sent as an event named after its EventType with the
// JSON-encoded payload as data; a "ping" event is sent on Heartbeat when
// no traffic has flowed, so proxies and idle clients don't time out the
// connection.
func Handler(bus *Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, events, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		ticker := time.NewTicker(Heartbeat)
		defer ticker.Stop()

		clientGone := c.Request.Context().Done()

		c.Stream(func(w gin.ResponseWriter) bool {
			select {
			case <-clientGone:
				return false
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(string(ev.EventType), ev)
				return true
			case <-ticker.C:
				c.SSEvent("ping", gin.H{"timestamp": time.Now().UTC()})
				return true
			}
		})

		slog.Debug("sse: subscriber disconnected")
	}
}
