package utils

import "strings"

const taskStatsPrefix = "task-stats:v1:project="

func TaskStatsCacheKey(projectID string) string {
	return taskStatsPrefix + strings.ToLower(strings.TrimSpace(projectID))
}
