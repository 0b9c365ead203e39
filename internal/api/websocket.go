package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/tasks"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	snapshotMessage = "task.snapshot"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsTaskProgress streams lifecycle events of one task until it reaches a terminal
// state or the client disconnects. The first message is always a snapshot.
func (h *Handlers) wsTaskProgress(c *gin.Context) {
	taskID := c.Param("id")
	if _, err := h.deps.Tasks.GetTaskStatus(taskID); err != nil {
		h.fail(c, err)
		return
	}
	if h.deps.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus not configured"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()
	log := h.logger.WithTaskID(taskID)

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	defer stop()

	out := make(chan *bus.Event, 64)
	sub, err := h.deps.Bus.Subscribe("task.*."+taskID, func(_ context.Context, ev *bus.Event) error {
		select {
		case out <- ev:
		case <-done:
		}
		return nil
	})
	if err != nil {
		log.Error("failed to subscribe to task events", zap.Error(err))
		closeWith(conn, gorillaws.CloseInternalServerErr, "subscribe failed")
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	// reads only to notice the peer going away and to keep pongs flowing
	go func() {
		defer stop()
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// snapshot after subscribing so no terminal event falls in between
	task, err := h.deps.Tasks.GetTaskStatus(taskID)
	if err != nil {
		closeWith(conn, gorillaws.CloseNormalClosure, err.Error())
		return
	}
	if err := writeMessage(conn, TaskMessage{Type: snapshotMessage, Task: *task}); err != nil {
		return
	}
	if task.Status.Terminal() {
		closeWith(conn, gorillaws.CloseNormalClosure, string(task.Status))
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-out:
			var t tasks.Task
			if err := ev.DecodeData(&t); err != nil {
				log.Warn("dropping undecodable task event", zap.Error(err))
				continue
			}
			if err := writeMessage(conn, TaskMessage{Type: ev.Type, Task: t}); err != nil {
				return
			}
			if t.Status.Terminal() {
				closeWith(conn, gorillaws.CloseNormalClosure, string(t.Status))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(gorillaws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *gorillaws.Conn, msg TaskMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func closeWith(conn *gorillaws.Conn, code int, text string) {
	_ = conn.WriteControl(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(code, text),
		time.Now().Add(writeWait))
}
