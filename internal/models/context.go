package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingContext travels through all seven pipeline stages of a single
// invocation. It is owned by exactly one invocation and never shared across
// concurrent requests. ExecutionErrors is appended to only by the query
// executor; every other stage treats the context as read-only.
type ProcessingContext struct {
	RequestID        string                 `json:"request_id"`
	OriginalQuestion string                 `json:"original_question"`
	UserID           string                 `json:"user_id,omitempty"`
	SessionID        string                 `json:"session_id,omitempty"`
	Preferences      map[string]interface{} `json:"preferences,omitempty"`
	DebugMode        bool                   `json:"debug_mode"`
	StartTime        time.Time              `json:"start_time"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	ExecutionErrors  []string               `json:"execution_errors,omitempty"`
}

// ProcessOptions carries the optional per-request knobs of Process and
// ProcessBatch. A nil options value means defaults everywhere.
type ProcessOptions struct {
	UserID      string
	SessionID   string
	Preferences map[string]interface{}
	Debug       bool
}

func NewProcessingContext(question string, opts *ProcessOptions) *ProcessingContext {
	pctx := &ProcessingContext{
		RequestID:        GenerateRequestID(),
		OriginalQuestion: question,
		StartTime:        time.Now(),
		Preferences:      make(map[string]interface{}),
		Metadata:         make(map[string]interface{}),
	}

	if opts != nil {
		pctx.UserID = opts.UserID
		pctx.SessionID = opts.SessionID
		pctx.DebugMode = opts.Debug
		for k, v := range opts.Preferences {
			pctx.Preferences[k] = v
		}
	}

	return pctx
}

func (pctx *ProcessingContext) ElapsedTime() time.Duration {
	return time.Since(pctx.StartTime)
}

// ElapsedSeconds is the elapsed wall time rounded to two decimals, the unit
// execution summaries report.
func (pctx *ProcessingContext) ElapsedSeconds() float64 {
	return float64(pctx.ElapsedTime().Round(10*time.Millisecond)) / float64(time.Second)
}

func (pctx *ProcessingContext) AddExecutionError(message string) {
	pctx.ExecutionErrors = append(pctx.ExecutionErrors, message)
}

// ValidateProcessingContext rejects a context that cannot carry a question.
// Empty questions pass here on purpose, stage 1 turns them into a validation
// failure with its own degraded-answer flavor.
func ValidateProcessingContext(pctx *ProcessingContext) bool {
	return pctx != nil
}

func GenerateRequestID() string {
	return uuid.New().String()
}
