package mcp

import (
	"time"

	"github.com/google/uuid"

	"github.com/professor93/cunzhi/pkg/constants"
)

// Response sources
const (
	SourceWeb      = "web"
	SourcePopup    = "popup"
	SourceTelegram = "telegram"
)

// PopupRequest asks the user to approve or steer the assistant
type PopupRequest struct {
	ID                string   `json:"id"`
	Message           string   `json:"message"`
	PredefinedOptions []string `json:"predefined_options,omitempty"`
	IsMarkdown        bool     `json:"is_markdown"`
}

// EnsureID assigns a fresh id when the request has none
func (r *PopupRequest) EnsureID() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
}

// Response is the user's decision for a PopupRequest
type Response struct {
	UserInput       *string  `json:"user_input"`
	SelectedOptions []string `json:"selected_options"`
	Images          []Image  `json:"images"`
	Metadata        Metadata `json:"metadata"`
}

// Image is an attachment supplied with a response
type Image struct {
	Data      string  `json:"data"`
	MediaType string  `json:"media_type"`
	Filename  *string `json:"filename,omitempty"`
}

// Metadata identifies the request a response answers
type Metadata struct {
	RequestID string `json:"request_id"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

func newMetadata(requestID, source string) Metadata {
	return Metadata{
		RequestID: requestID,
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewContinueResponse lets the assistant carry on without further input
func NewContinueResponse(requestID, source string) Response {
	return NewInputResponse(requestID, source, constants.ContinueResponseText)
}

// NewInputResponse answers with free text
func NewInputResponse(requestID, source, input string) Response {
	return Response{
		UserInput:       &input,
		SelectedOptions: []string{},
		Images:          []Image{},
		Metadata:        newMetadata(requestID, source),
	}
}

// NewSelectionResponse answers with chosen predefined options
func NewSelectionResponse(requestID, source string, options ...string) Response {
	selected := make([]string, 0, len(options))
	selected = append(selected, options...)
	return Response{
		SelectedOptions: selected,
		Images:          []Image{},
		Metadata:        newMetadata(requestID, source),
	}
}
