// handlers/stream.go
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"breathesmart/bus"

	"github.com/gofiber/fiber/v2"
)

// SetupStreamRoutes exposes the sync channel to browser views as an
// SSE feed. Each connection gets its own channel handle, so events it
// would publish (none today) never echo back, and disconnecting
// releases the subscription.
func SetupStreamRoutes(app *fiber.App, broker bus.Broker) {
	app.Get("/api/reports/stream", func(c *fiber.Ctx) error {
		// SSE headers
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		ch := broker.Open()
		events := make(chan bus.Event, 16)
		// Buffer full means the client is too slow; dropping is fine,
		// delivery is at-most-once and views re-fetch on load.
		unsubscribe := ch.Subscribe(func(ev bus.Event) {
			select {
			case events <- ev:
			default:
			}
		})

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer func() {
				unsubscribe()
				ch.Close()
			}()

			keepalive := time.NewTicker(15 * time.Second)
			defer keepalive.Stop()

			// Initial keepalive (comment event)
			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case ev := <-events:
					payload, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					fmt.Fprintf(w, "event: report\ndata: %s\n\n", payload)
					if err := w.Flush(); err != nil {
						// Client disconnected
						return
					}
				case <-keepalive.C:
					w.WriteString(":\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				case <-c.Context().Done():
					return
				}
			}
		})

		return nil
	})
}
