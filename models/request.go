package models

// ChatRequest is the body of POST /api/chat/message and /api/chat/stream.
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId,omitempty"`
}
