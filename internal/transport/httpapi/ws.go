package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"idealcity/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
}

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// wsError mirrors the HTTP error envelope on the stream.
type wsError struct {
	Error string `json:"error"`
}

// handleCityphoneWS runs the CityPhone stream: the client sends action
// envelopes, the server answers each one in order. Submissions run the
// full pipeline, so one connection processes one action at a time.
func (s *Server) handleCityphoneWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var action pipeline.Action
		if err := json.Unmarshal(msg, &action); err != nil {
			writeWS(conn, wsError{Error: "bad action envelope"})
			continue
		}
		res, err := s.pipe.HandleCityphoneAction(ctx, action)
		if err != nil {
			writeWS(conn, wsError{Error: err.Error()})
			continue
		}
		if !writeWS(conn, res) {
			return
		}
	}
}

func writeWS(conn *websocket.Conn, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b) == nil
}
