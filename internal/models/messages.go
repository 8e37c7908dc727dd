package models

import "encoding/json"

// MessageType names a message exchanged between the gateway and open pages
type MessageType string

// Gateway to page
const (
	MessageSubmissionStored MessageType = "OFFLINE_SUBMISSION_STORED"
	MessageSyncComplete     MessageType = "OFFLINE_SYNC_COMPLETE"
	MessagePreloadComplete  MessageType = "QUIZ_PRELOAD_COMPLETE"
	MessagePreloadFailed    MessageType = "QUIZ_PRELOAD_FAILED"
)

// Page to gateway
const (
	ControlSkipWaiting      MessageType = "SKIP_WAITING"
	ControlCacheUpdate      MessageType = "CACHE_UPDATE"
	ControlPreloadQuizzes   MessageType = "PRELOAD_QUIZZES"
	ControlGetOfflineStatus MessageType = "GET_OFFLINE_STATUS"
	ControlSyncSubmissions  MessageType = "SYNC_SUBMISSIONS"
)

// Message is a broadcast from the gateway to every open page.
// Only the fields relevant to Type are set.
type Message struct {
	Type         MessageType  `json:"type"`
	SubmissionID string       `json:"submissionId,omitempty"`
	Results      []SyncResult `json:"results,omitempty"`
	Cached       int          `json:"cached,omitempty"`
	Total        int          `json:"total,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Bytes encodes the message for the wire
func (m Message) Bytes() []byte {
	b, _ := json.Marshal(m)
	return b
}

// ControlMessage is a request from a page to the gateway
type ControlMessage struct {
	Type MessageType `json:"type"`
	Tag  string      `json:"tag,omitempty"`
}
