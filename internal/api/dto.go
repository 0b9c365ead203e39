package api

import (
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/identity"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/reportstore"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/tasks"
)

type GenerateRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Force bool   `json:"force"`
}

type SendRequest struct {
	Kind        string `json:"kind" binding:"required"`
	Destination string `json:"destination"`
}

type ArchiveRequest struct {
	Destination string `json:"destination"`
}

type TaskListResponse struct {
	Tasks []tasks.Task `json:"tasks"`
	Total int          `json:"total"`
}

type ReportListResponse struct {
	Reports []reportstore.Record `json:"reports"`
	Total   int                  `json:"total"`
}

type RosterResponse struct {
	Members []roster.TeamMember `json:"members"`
	Total   int                 `json:"total"`
}

type ResolveResponse struct {
	Member  *roster.TeamMember `json:"member"`
	Method  identity.Method    `json:"method"`
	Matched bool               `json:"matched"`
}

// TaskMessage is pushed over the task progress websocket.
type TaskMessage struct {
	Type string     `json:"type"`
	Task tasks.Task `json:"task"`
}
