package webapi

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// closeOnDisconnect returns a context that is cancelled when the request
// ends or the peer closes the websocket. Observers only write, so reading is
// how a close from the client is noticed.
func (c *FilesController) closeOnDisconnect(ctx echo.Context, ws *websocket.Conn) (context.Context, context.CancelFunc) {
	observeCtx, cancel := context.WithCancel(ctx.Request().Context())

	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return observeCtx, cancel
}
