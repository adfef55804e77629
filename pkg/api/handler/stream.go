package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/core/realtime"
	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream 实时日志流：先发送已有日志，再转发总线上的新日志，执行结束时发送done帧
// GET /api/v1/executions/:id/logs/ws
func (h *ExecutionHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.engine.Store().GetExecution(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L().Warnf("⚠️ [API] WebSocket升级失败: ExecutionID=%s, Error=%v", id, err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// 客户端断开即结束推送
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s := &logStream{
		ws:    ws,
		store: h.engine.Store(),
		bus:   h.engine.Bus(),
		id:    id,
		poll:  h.pollInterval,
	}
	if err := s.run(ctx); err != nil {
		_ = ws.WriteJSON(dto.ErrorFrame{Error: err.Error()})
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// logStream 一个连接的推送状态，按日志ID去重
type logStream struct {
	ws     *websocket.Conn
	store  storage.ExecutionRepository
	bus    *realtime.LogBus
	id     string
	lastID int64
	poll   time.Duration
}

func (s *logStream) run(ctx context.Context) error {
	// 先订阅再读存量，避免两者之间的日志丢失
	var events <-chan *realtime.ExecutionEvent
	if s.bus != nil {
		sub, err := s.bus.Subscribe(ctx, s.id)
		if err != nil {
			return err
		}
		events = sub.Events()
	}

	if done, err := s.catchUp(ctx); done || err != nil {
		return err
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Type {
			case realtime.EventLogAppended:
				if ev.Log == nil || ev.Log.ID <= s.lastID {
					continue
				}
				if err := s.send(ev.Log); err != nil {
					return err
				}
			case realtime.EventExecutionFinished:
				if done, err := s.catchUp(ctx); done || err != nil {
					return err
				}
			}
		case <-ticker.C:
			// 在其他进程中运行的执行不经过本进程的总线
			if done, err := s.catchUp(ctx); done || err != nil {
				return err
			}
		}
	}
}

// catchUp 补发存储中的新日志；执行已结束时发送done帧并返回true
func (s *logStream) catchUp(ctx context.Context) (bool, error) {
	exec, err := s.store.GetExecution(ctx, s.id)
	if err != nil {
		return false, err
	}
	logs, err := s.store.ListLogs(ctx, s.id, s.lastID)
	if err != nil {
		return false, err
	}
	for _, l := range logs {
		if err := s.send(l); err != nil {
			return false, err
		}
	}
	if !exec.Status.IsTerminal() {
		return false, nil
	}
	return true, s.ws.WriteJSON(dto.NewDoneFrame(exec))
}

func (s *logStream) send(l *storage.ExecutionLog) error {
	if l.ID <= s.lastID {
		return nil
	}
	if err := s.ws.WriteJSON(dto.NewLogFrame(l)); err != nil {
		return err
	}
	s.lastID = l.ID
	return nil
}
