// Package validation checks control messages sent by stream viewers before
// they reach the simulation.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/opd-ai/go-quadsim/pkg/config"
)

// Message size and rate limits
const (
	MaxMessageSize    = 4 * 1024
	MaxViewerNameLen  = 32
	MaxMessagesPerMin = 120
)

// Control message types accepted from viewers
const (
	MessageHello      = "hello"
	MessageSetMode    = "set_mode"
	MessageToggleMode = "toggle_mode"
	MessageShowCells  = "show_cells"
	MessagePing       = "ping"
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrInvalidJSON     = errors.New("invalid JSON format")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnknownMessage  = errors.New("unknown message type")
	ErrInvalidField    = errors.New("invalid field")
)

var validViewerNameChars = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.()]+$`)

// ControlMessage is the JSON envelope viewers send to the server
type ControlMessage struct {
	Type    string `json:"type"`
	Mode    string `json:"mode,omitempty"`
	Name    string `json:"name,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// MessageValidator applies size, format and per-viewer rate checks
type MessageValidator struct {
	rateLimiter *RateLimiter
}

// NewMessageValidator creates a new message validator with rate limiting
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{
		rateLimiter: NewRateLimiter(MaxMessagesPerMin, time.Minute),
	}
}

// Close releases resources used by the message validator
func (v *MessageValidator) Close() {
	if v.rateLimiter != nil {
		v.rateLimiter.Close()
	}
}

// Forget drops rate limit state for a disconnected viewer
func (v *MessageValidator) Forget(viewerID string) {
	v.rateLimiter.Forget(viewerID)
}

// ValidateMessage checks a raw message against size, format and rate limits
func (v *MessageValidator) ValidateMessage(data []byte, viewerID string) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	if !json.Valid(data) {
		return ErrInvalidJSON
	}

	if !v.rateLimiter.Allow(viewerID) {
		return fmt.Errorf("%w: max %d messages per minute", ErrRateLimited, MaxMessagesPerMin)
	}

	return nil
}

// ParseControlMessage decodes and checks a control message. Names are
// sanitized in place.
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	switch msg.Type {
	case MessageSetMode:
		if !config.IsKnownMode(msg.Mode) {
			return nil, fmt.Errorf("%w: mode %q", ErrInvalidField, msg.Mode)
		}
	case MessageShowCells:
		if msg.Enabled == nil {
			return nil, fmt.Errorf("%w: show_cells requires enabled", ErrInvalidField)
		}
	case MessageHello:
		name, err := ValidateViewerName(msg.Name)
		if err != nil {
			return nil, err
		}
		msg.Name = name
	case MessageToggleMode, MessagePing:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return &msg, nil
}

// ValidateViewerName validates and sanitizes a viewer's display name
func ValidateViewerName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: viewer name cannot be empty", ErrInvalidField)
	}

	if len(name) > MaxViewerNameLen {
		return "", fmt.Errorf("%w: viewer name too long: %d characters (max %d)", ErrInvalidField, len(name), MaxViewerNameLen)
	}

	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: viewer name contains invalid UTF-8", ErrInvalidField)
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: viewer name cannot be only whitespace", ErrInvalidField)
	}

	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: viewer name contains control characters", ErrInvalidField)
		}
	}

	if !validViewerNameChars.MatchString(trimmed) {
		return "", fmt.Errorf("%w: viewer name contains invalid characters", ErrInvalidField)
	}

	return html.EscapeString(trimmed), nil
}
