package hub

import (
	"sort"

	"Amoura/internal/model"
)

// MonitorService gathers hub statistics for the ops endpoint.
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service.
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats returns connection counters and the per-user handle table.
func (ms *MonitorService) GetStats() model.MonitorResponse {
	ms.hub.clientsMu.RLock()
	defer ms.hub.clientsMu.RUnlock()

	users := make([]model.UserConnection, 0, len(ms.hub.clients))
	total := 0
	online := 0

	for userID, handles := range ms.hub.clients {
		total += len(handles)
		joined := 0
		for _, c := range handles {
			if c.isJoined() {
				joined++
			}
		}
		if joined > 0 {
			online++
		}
		users = append(users, model.UserConnection{UserID: userID, Handles: len(handles)})
	}

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	status := "healthy"
	if total == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status: status,
		Connections: model.ConnectionStats{
			TotalConnections: total,
			OnlineUsers:      online,
		},
		Users: users,
	}
}
