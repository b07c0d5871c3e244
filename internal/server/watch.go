package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"codedocs/internal/pipeline"
	"codedocs/internal/store"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
	watchPollEvery = time.Second
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWatch streams the polling tuple over a websocket until the project
// reaches a terminal state with enrichment finished.
func (a *API) handleWatch(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})

	// Drain inbound frames so pong handling keeps running.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(watchPollEvery)
	defer poll.Stop()
	ping := time.NewTicker(watchPingEvery)
	defer ping.Stop()

	projectID := p.ID
	var lastSent statusResponse
	for {
		p, err := a.Stores.Projects.Get(r.Context(), projectID)
		if err != nil {
			return
		}
		tuple := statusResponse{
			ID:                 p.ID,
			Status:             p.Status,
			ProgressPercentage: p.ProgressPercentage,
			ProgressStage:      p.ProgressStage,
			ErrorMessage:       p.ErrorMessage,
		}
		if tuple != lastSent {
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(tuple); err != nil {
				return
			}
			lastSent = tuple
		}
		if watchDone(p) {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-poll.C:
		case <-ping.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("project %s: watch ping: %v", projectID, err)
				return
			}
		}
	}
}

// watchDone reports whether nothing further will change: the run failed,
// or it completed and the enrichment stages have settled on a final label.
func watchDone(p store.Project) bool {
	if p.Status == store.StatusFailed {
		return true
	}
	if p.Status != store.StatusCompleted {
		return false
	}
	return p.ProgressStage == pipeline.StageChatReady || p.ProgressStage == pipeline.StageChatDown
}
