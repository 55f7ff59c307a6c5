package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ZenMix/core/mixer"
	"ZenMix/logger"

	"github.com/gorilla/websocket"
)

const (
	// WebSocket 配置
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10 // ping 间隔 (必须小于 pongWait)
	wsMaxMessageSize = 2048
)

// 混音台控制消息类型
const (
	wsCmdPlayAll     = "play_all"
	wsCmdPauseAll    = "pause_all"
	wsCmdPlayTrack   = "play_track"
	wsCmdPauseTrack  = "pause_track"
	wsCmdTrackVolume = "track_volume"
	wsCmdMixerVolume = "mixer_volume"
)

var mixerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsControlMessage 客户端下发的控制指令。
type wsControlMessage struct {
	Type    string  `json:"type"`
	TrackID string  `json:"trackId,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
}

// MixerStreamHandler upgrades the connection and streams the caller's
// mixer state on every tick. Browsers cannot set an Authorization header
// on a websocket, so the token rides in the query string.
func (h *APIHandler) MixerStreamHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token is required", http.StatusUnauthorized)
		return
	}
	claims, err := h.jwt.ParseToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := mixerUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	session := h.sessions.Get(claims.UserID)
	logger.Info("混音台状态流已连接",
		logger.Int64("userId", claims.UserID),
		logger.String("sessionId", session.ID))

	done := make(chan struct{})
	go h.mixerReadPump(conn, session, done)
	h.mixerWritePump(conn, session, done)
}

// mixerReadPump consumes control messages until the client goes away.
func (h *APIHandler) mixerReadPump(conn *websocket.Conn, session *mixer.Session, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", logger.ErrorField(err))
			}
			return
		}

		var msg wsControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("invalid control message", logger.ErrorField(err))
			continue
		}
		h.applyControlMessage(session, msg)
	}
}

func (h *APIHandler) applyControlMessage(session *mixer.Session, msg wsControlMessage) {
	engine := session.Engine
	var err error
	switch msg.Type {
	case wsCmdPlayAll:
		err = engine.PlayAll(context.Background())
	case wsCmdPauseAll:
		engine.PauseAll()
	case wsCmdPlayTrack:
		err = engine.PlayTrack(context.Background(), msg.TrackID)
	case wsCmdPauseTrack:
		err = engine.PauseTrack(msg.TrackID)
	case wsCmdTrackVolume:
		err = engine.SetTrackVolume(msg.TrackID, msg.Volume)
	case wsCmdMixerVolume:
		engine.SetMasterVolume(msg.Volume)
	default:
		logger.Warn("unknown control message", logger.String("type", msg.Type))
	}
	if err != nil {
		logger.Warn("control message failed",
			logger.String("type", msg.Type),
			logger.String("trackId", msg.TrackID),
			logger.ErrorField(err))
	}
}

// mixerWritePump pushes the engine state at the mixer tick rate.
func (h *APIHandler) mixerWritePump(conn *websocket.Conn, session *mixer.Session, done chan struct{}) {
	stateTicker := time.NewTicker(h.cfg.MixerTick)
	pingTicker := time.NewTicker(wsPingPeriod)
	defer stateTicker.Stop()
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-stateTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(session.Engine.State()); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
