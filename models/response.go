package models

import "time"

// ChatResponse is returned by the chat endpoint. HasContext reports whether
// retrieved passages were part of the prompt.
type ChatResponse struct {
	Response   string    `json:"response"`
	ChatID     string    `json:"chatId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	HasContext bool      `json:"hasContext"`
}

// UploadResponse is the caller-facing ingestion result.
type UploadResponse struct {
	Message  string `json:"message"`
	FileName string `json:"fileName"`
	Chunks   int    `json:"chunks"`
	Success  bool   `json:"success"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
