package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateViewerName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "valid simple name", input: "Observer1", expected: "Observer1"},
		{name: "valid with spaces and dots", input: "Dr. Viewer (lab)", expected: "Dr. Viewer (lab)"},
		{name: "trimmed whitespace", input: "  watcher  ", expected: "watcher"},
		{name: "empty", input: "", wantErr: true},
		{name: "only whitespace", input: "    ", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxViewerNameLen+1), wantErr: true},
		{name: "control character", input: "bad\x07name", wantErr: true},
		{name: "html injection", input: "<script>", wantErr: true},
		{name: "invalid utf8", input: "bad\xffname", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateViewerName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateViewerName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidField) {
				t.Errorf("error %v does not wrap ErrInvalidField", err)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ValidateViewerName() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseControlMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr error
	}{
		{name: "set brute", data: `{"type":"set_mode","mode":"brute"}`, want: MessageSetMode},
		{name: "set quadtree", data: `{"type":"set_mode","mode":"quadtree"}`, want: MessageSetMode},
		{name: "set unknown mode", data: `{"type":"set_mode","mode":"octree"}`, wantErr: ErrInvalidField},
		{name: "set without mode", data: `{"type":"set_mode"}`, wantErr: ErrInvalidField},
		{name: "toggle", data: `{"type":"toggle_mode"}`, want: MessageToggleMode},
		{name: "ping", data: `{"type":"ping"}`, want: MessagePing},
		{name: "show cells", data: `{"type":"show_cells","enabled":false}`, want: MessageShowCells},
		{name: "show cells missing flag", data: `{"type":"show_cells"}`, wantErr: ErrInvalidField},
		{name: "hello", data: `{"type":"hello","name":"viewer"}`, want: MessageHello},
		{name: "hello bad name", data: `{"type":"hello","name":""}`, wantErr: ErrInvalidField},
		{name: "unknown type", data: `{"type":"fire_torpedo"}`, wantErr: ErrUnknownMessage},
		{name: "not json", data: `set_mode`, wantErr: ErrInvalidJSON},
		{name: "wrong field type", data: `{"type":7}`, wantErr: ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseControlMessage([]byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseControlMessage() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseControlMessage() unexpected error: %v", err)
			}
			if msg.Type != tt.want {
				t.Errorf("Type = %q, want %q", msg.Type, tt.want)
			}
		})
	}
}

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()
	defer validator.Close()

	tests := []struct {
		name        string
		data        []byte
		viewerID    string
		wantErr     bool
		errContains string
	}{
		{
			name:     "valid JSON message",
			data:     []byte(`{"type":"ping"}`),
			viewerID: "viewer1",
		},
		{
			name:        "too large message",
			data:        make([]byte, MaxMessageSize+1),
			viewerID:    "viewer1",
			wantErr:     true,
			errContains: "too large",
		},
		{
			name:        "invalid JSON",
			data:        []byte(`{"invalid": json`),
			viewerID:    "viewer1",
			wantErr:     true,
			errContains: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateMessage(tt.data, tt.viewerID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidateMessage() error = %v, should contain %q", err, tt.errContains)
			}
		})
	}
}

func TestMessageValidator_RateLimited(t *testing.T) {
	validator := NewMessageValidator()
	defer validator.Close()

	msg := []byte(`{"type":"ping"}`)
	for i := 0; i < MaxMessagesPerMin; i++ {
		if err := validator.ValidateMessage(msg, "chatty"); err != nil {
			t.Fatalf("message %d rejected: %v", i, err)
		}
	}
	if err := validator.ValidateMessage(msg, "chatty"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	validator.Forget("chatty")
	if err := validator.ValidateMessage(msg, "chatty"); err != nil {
		t.Errorf("forgotten viewer should start with a full bucket: %v", err)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	defer rl.Close()

	viewerID := "test-viewer"

	for i := 0; i < 5; i++ {
		if !rl.Allow(viewerID) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if rl.Allow(viewerID) {
		t.Error("6th request should be denied")
	}

	if !rl.Allow("other-viewer") {
		t.Error("Different viewer should be allowed")
	}
	if rl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)
	defer rl.Close()

	viewerID := "test-viewer"

	rl.Allow(viewerID)
	rl.Allow(viewerID)

	if rl.Allow(viewerID) {
		t.Error("Request should be denied after consuming all tokens")
	}

	time.Sleep(150 * time.Millisecond)

	if !rl.Allow(viewerID) {
		t.Error("Request should be allowed after token refill")
	}
}

func TestRateLimiter_RemoveInactive(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	rl.Allow("idle")
	rl.removeInactive(time.Now().Add(time.Second))
	if rl.Len() != 0 {
		t.Errorf("idle viewer not removed, Len() = %d", rl.Len())
	}

	// double close must not panic
	rl.Close()
}
