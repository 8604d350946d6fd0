package model

import "strings"

// LogEntry はAI実行ログの1件を表す。
type LogEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Task      string `json:"task"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	Details   string `json:"details"`
	User      string `json:"user"`
}

// LogFilter はログ一覧の検索条件。
type LogFilter struct {
	Query  string
	Status string
	Type   string
}

// FilterLogs は検索語・ステータス・種別でログを絞り込む。
// 検索語はタスク、詳細、ユーザーのいずれかへの部分一致。
func FilterLogs(logs []LogEntry, filter LogFilter) []LogEntry {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	result := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		if !matchesFacet(l.Status, filter.Status) || !matchesFacet(l.Type, filter.Type) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(l.Task), query) &&
			!strings.Contains(strings.ToLower(l.Details), query) &&
			!strings.Contains(strings.ToLower(l.User), query) {
			continue
		}
		result = append(result, l)
	}
	return result
}
