// Package models holds the public wire types of the HTTP API. Clients
// embedding this service import these instead of redeclaring the contract.
package models

import "time"

type AskQuestionRequest struct {
	Question    string                 `json:"question" binding:"required"`
	UserID      string                 `json:"user_id,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
	Debug       bool                   `json:"debug,omitempty"`
}

type BatchQuestionRequest struct {
	Questions   []string               `json:"questions" binding:"required,min=1"`
	UserID      string                 `json:"user_id,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
	Debug       bool                   `json:"debug,omitempty"`
}

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
