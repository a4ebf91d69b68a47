package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/genyarko/live-caption-service/internal/audio"
	"github.com/genyarko/live-caption-service/internal/protocol"
	"github.com/genyarko/live-caption-service/internal/stream"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	sourceFrames = 256 // Buffered frames between the socket and the session
)

// wsConn binds one websocket connection to a session. Only the read loop
// touches source; only the write loop writes to conn.
type wsConn struct {
	conn    *websocket.Conn
	session *stream.Session
	server  *HTTPServer
	logger  *slog.Logger

	source *audio.ChannelSource
	out    chan any

	ctx        context.Context
	cancel     context.CancelFunc
	writerDone chan struct{}
}

// handleWebSocket implements GET /sessions/{id}/ws
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.metrics.WebSocketOpened()
	defer h.metrics.WebSocketClosed()

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		conn:       conn,
		session:    session,
		server:     h,
		logger:     h.logger.With(slog.String("session_id", session.ID), slog.String("remote", r.RemoteAddr)),
		out:        make(chan any, 16),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}
	c.run()
}

func (c *wsConn) run() {
	c.logger.Info("Websocket client connected")

	events, unsubscribe := c.session.Subscribe()
	defer unsubscribe()

	go c.writeLoop(events)
	c.readLoop()

	c.cancel()
	<-c.writerDone
	c.conn.Close()
	c.release()

	c.logger.Info("Websocket client disconnected")
}

// release stops the session if this connection's audio is still feeding it
func (c *wsConn) release() {
	if c.source == nil || c.source.Closed() {
		return
	}
	if err := c.session.Stop(); err != nil && !errors.Is(err, stream.ErrNotListening) {
		c.logger.Warn("Failed to stop session on disconnect", slog.String("error", err.Error()))
	}
}

func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(protocol.MaxAudioPayloadSize + protocol.MaxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := protocol.ParseMessage(messageType, data)
		if err != nil {
			c.reply(protocol.ErrorReply("", err))
			continue
		}

		if msg.Audio != nil {
			c.handleAudio(msg.Audio)
			continue
		}
		c.handleCommand(msg.Command)
	}
}

func (c *wsConn) handleAudio(data []byte) {
	if c.source == nil {
		c.reply(protocol.ErrorReply("", stream.ErrNotListening))
		return
	}

	if err := c.source.WritePCM16(c.ctx, data); err != nil {
		if errors.Is(err, audio.ErrSourceClosed) {
			// The session stopped underneath us
			c.source = nil
			c.reply(protocol.ErrorReply("", stream.ErrNotListening))
			return
		}
		c.reply(protocol.ErrorReply("", err))
	}
}

func (c *wsConn) handleCommand(cmd *protocol.Command) {
	c.logger.Debug("Websocket command", slog.String("command", cmd.String()))

	var err error
	switch cmd.Type {
	case protocol.CommandStart:
		err = c.start()
	case protocol.CommandStop:
		err = c.session.Stop()
		c.source = nil
	case protocol.CommandSetSourceLanguage:
		err = c.session.SetSourceLanguage(cmd.Language)
	case protocol.CommandSetTargetLanguage:
		err = c.session.SetTargetLanguage(cmd.Language)
	case protocol.CommandSubmitText:
		err = c.session.SubmitTypedText(cmd.Text)
	}

	if err != nil {
		c.reply(protocol.ErrorReply(cmd.Type, err))
		return
	}
	c.reply(protocol.Ack(cmd.Type))
}

func (c *wsConn) start() error {
	framer, err := audio.NewFramer(c.server.sampleRate, c.server.frameDuration)
	if err != nil {
		return err
	}

	source := audio.NewChannelSource("websocket", framer, sourceFrames)
	if err := c.session.Start(source); err != nil {
		return err
	}
	c.source = source
	return nil
}

// reply queues a message for the write loop
func (c *wsConn) reply(v any) {
	select {
	case c.out <- v:
	case <-c.writerDone:
	case <-c.ctx.Done():
	}
}

// writeLoop serializes events, replies and pings onto the connection
func (c *wsConn) writeLoop(events <-chan stream.Event) {
	defer close(c.writerDone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case event, ok := <-events:
			if !ok {
				// Session removed; closing the socket ends the read loop
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				c.conn.Close()
				return
			}
			if !c.write(event) {
				return
			}

		case msg := <-c.out:
			if !c.write(msg) {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) write(v any) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Debug("Websocket write failed", slog.String("error", err.Error()))
		c.conn.Close()
		return false
	}
	return true
}
