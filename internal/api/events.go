package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"DealPilot/internal/task"
	"DealPilot/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// handleEvents 将任务事件推送给 WebSocket 客户端，可通过 task_id 过滤单个任务。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 先订阅再握手，握手完成后产生的事件不会丢失。
	events, err := s.tasks.Subscribe(ctx)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Warn("WebSocket 握手失败", slog.Any("error", err))
		return
	}
	defer conn.Close()
	filter := strings.TrimSpace(r.URL.Query().Get("task_id"))

	// 读协程只处理 pong 与关闭帧，读失败即结束订阅。
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if !matchesEvent(event, filter) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				logger.L().Debug("WebSocket 写入失败", slog.Any("error", err))
				return
			}
			if filter != "" && event.Type == task.EventComplete {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task complete"),
					time.Now().Add(wsWriteWait))
				return
			}
		}
	}
}

func matchesEvent(event task.Event, filter string) bool {
	return filter == "" || event.TaskID == filter
}
