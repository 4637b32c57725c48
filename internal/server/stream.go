package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const heartbeatInterval = 15 * time.Second

// handleStream — персистентное подключение подписчика (Server-Sent Events).
// Порядок строго по контракту хаба: сначала бэкфилл из replay-буфера,
// затем живой поток. Три вида сообщений: incident, notification, stats.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Клиент отключился
			return

		case <-heartbeat.C:
			// Комментарий SSE держит соединение живым через прокси
			if err := s.writeFrame(rc, w, flusher, ": ping\n\n"); err != nil {
				return
			}

		case ev, ok := <-sub.Events():
			if !ok {
				// Хаб остановлен
				return
			}

			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("stream marshal failed", zap.Error(err))
				continue
			}

			frame := fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Kind, payload)
			if err := s.writeFrame(rc, w, flusher, frame); err != nil {
				s.logger.Debug("subscriber write failed, closing stream",
					zap.String("subscriber", sub.ID),
					zap.Error(err))
				return
			}
		}
	}
}

// writeFrame пишет кадр с дедлайном: зависший клиент не должен держать
// горутину дольше send_timeout. Таймаут — отказ доставки этому подписчику;
// соединение закрывается, хаб продолжает обслуживать остальных.
func (s *Server) writeFrame(rc *http.ResponseController, w http.ResponseWriter, flusher http.Flusher, frame string) error {
	if s.sendCfg.SendTimeout > 0 {
		if err := rc.SetWriteDeadline(time.Now().Add(s.sendCfg.SendTimeout)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w, frame); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
