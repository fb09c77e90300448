package models

import "time"

// DashboardSummary aggregates admin landing page counters.
type DashboardSummary struct {
	StudentsByStatus         map[StudentStatus]int `json:"studentsByStatus"`
	TotalStudents            int                   `json:"totalStudents"`
	ActiveProjects           int                   `json:"activeProjects"`
	ActiveMembers            int                   `json:"activeMembers"`
	PendingRequisitions      int                   `json:"pendingRequisitions"`
	PendingDeletionRequests  int                   `json:"pendingDeletionRequests"`
	UnreadAdminNotifications int                   `json:"unreadAdminNotifications"`
	GeneratedAt              time.Time             `json:"generatedAt"`
}

// SystemMetrics summarises runtime health for the metrics endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	WorkflowTransitions      uint64    `json:"workflowTransitions"`
	FanoutFailures           uint64    `json:"fanoutFailures"`
	RealtimeEvents           uint64    `json:"realtimeEvents"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
