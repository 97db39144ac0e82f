package quota

import (
	"time"
)

// Operation is a weighted YouTube API operation class
type Operation string

const (
	OpVideosList   Operation = "videos.list"
	OpVideosUpdate Operation = "videos.update"
	OpSearchList   Operation = "search.list"
	OpChannelsList Operation = "channels.list"
)

// Unit costs charged by the platform per operation class
var operationCosts = map[Operation]int64{
	OpVideosList:   1,
	OpVideosUpdate: 50,
	OpSearchList:   100,
	OpChannelsList: 1,
}

// Cost returns the unit cost of an operation. Unknown operations cost 1,
// matching the cheapest class, so an unmapped call never bypasses metering.
func Cost(op Operation) int64 {
	if cost, ok := operationCosts[op]; ok {
		return cost
	}
	return 1
}

// Usage is one durable ledger row: cumulative consumption for a UTC day
type Usage struct {
	Date                  time.Time `db:"date"`
	TotalUnitsUsed        int64     `db:"total_units_used"`
	VideoListCalls        int       `db:"video_list_calls"`
	VideoUpdateCalls      int       `db:"video_update_calls"`
	SearchListCalls       int       `db:"search_list_calls"`
	ChannelListCalls      int       `db:"channel_list_calls"`
	CircuitBreakerTripped bool      `db:"circuit_breaker_tripped"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// CheckResult is the outcome of an admission check
type CheckResult struct {
	Allowed              bool  `json:"allowed"`
	CurrentUsage         int64 `json:"current_usage"`
	RemainingQuota       int64 `json:"remaining_quota"`
	CircuitBreakerActive bool  `json:"circuit_breaker_active"`
	ProjectedUsage       int64 `json:"projected_usage"`
}

// Status is the full quota snapshot reported to operators and cycle results
type Status struct {
	TotalQuota              int64 `json:"total_quota"`
	CurrentUsage            int64 `json:"current_usage"`
	RemainingQuota          int64 `json:"remaining_quota"`
	WarningThreshold        int64 `json:"warning_threshold"`
	CircuitBreakerThreshold int64 `json:"circuit_breaker_threshold"`
	CircuitBreakerActive    bool  `json:"circuit_breaker_active"`
}
