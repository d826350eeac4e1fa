package models

import "time"

// RoomUsage counts scheduled sessions per room, cancelled sessions excluded.
type RoomUsage struct {
	Location string `json:"location"`
	Count    int    `json:"count"`
}

// UsageReport is the administrator dashboard aggregate.
type UsageReport struct {
	StatusCounts map[SessionStatus]int `json:"status_counts"`
	RoomUsage    []RoomUsage           `json:"room_usage"`
	UserCounts   map[UserRole]int      `json:"user_counts"`
	GeneratedAt  time.Time             `json:"generated_at"`
}
