package model

// MonitorResponse is the aggregate hub statistics payload.
type MonitorResponse struct {
	Status      string           `json:"status"`
	Connections ConnectionStats  `json:"connections"`
	Users       []UserConnection `json:"users"`
}

// ConnectionStats holds hub-wide connection counters.
type ConnectionStats struct {
	TotalConnections int `json:"totalConnections"`
	OnlineUsers      int `json:"onlineUsers"`
}

// UserConnection describes one online user and their handle count.
type UserConnection struct {
	UserID  string `json:"userId"`
	Handles int    `json:"handles"`
}
