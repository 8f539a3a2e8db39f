// Package cursor provides opaque resume cursors for conversion passes. A
// cursor records the last finalized step of a pass as a base64-encoded JSON
// token, so an interrupted conversion can be resumed from the step after it.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Token is an opaque cursor token.
type Token []byte

// Cursor is the structured content of a token.
type Cursor struct {
	Type      string      `json:"type"`
	Position  interface{} `json:"position"`
	Timestamp time.Time   `json:"timestamp"`
}

// StepCursor is a step-index position within a pass.
type StepCursor struct {
	Index int `json:"index"`
}

// Encode creates a token from structured position data.
func Encode(cursorType string, position interface{}) (Token, error) {
	cursor := &Cursor{
		Type:      cursorType,
		Position:  position,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return Token(base64.URLEncoding.EncodeToString(data)), nil
}

// Decode parses a token back to structured data.
func Decode(token Token) (*Cursor, error) {
	if len(token) == 0 {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(string(token))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor token: %w", err)
	}

	var parsed Cursor
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cursor: %w", err)
	}

	return &parsed, nil
}

// EncodeStep creates a step-index token.
func EncodeStep(index int) (Token, error) {
	return Encode("step", &StepCursor{Index: index})
}

// DecodeStep parses a step-index token. A nil token decodes to a nil cursor,
// meaning "start from the beginning".
func DecodeStep(token Token) (*StepCursor, error) {
	parsed, err := Decode(token)
	if err != nil {
		return nil, err
	}

	if parsed == nil {
		return nil, nil
	}

	if parsed.Type != "step" {
		return nil, fmt.Errorf("expected step cursor, got %s", parsed.Type)
	}

	positionBytes, err := json.Marshal(parsed.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal position: %w", err)
	}

	var stepCursor StepCursor
	if err := json.Unmarshal(positionBytes, &stepCursor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step cursor: %w", err)
	}

	return &stepCursor, nil
}

// Age returns the age of a token.
func Age(token Token) (time.Duration, error) {
	if len(token) == 0 {
		return 0, nil
	}

	parsed, err := Decode(token)
	if err != nil {
		return 0, err
	}

	return time.Since(parsed.Timestamp), nil
}

// WriteFile persists a token to a checkpoint file.
func WriteFile(path string, token Token) error {
	return os.WriteFile(path, token, 0o644)
}

// ReadFile loads a token from a checkpoint file. A missing file yields a nil
// token.
func ReadFile(path string) (Token, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Token(data), nil
}
