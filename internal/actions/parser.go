package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Markers bracketing the JSON payload in assistant text.
const (
	StartMarker = "[EXCEL_ACTIONS]"
	EndMarker   = "[/EXCEL_ACTIONS]"
)

var (
	// ErrNoBlock is returned when the text has no start marker.
	ErrNoBlock = errors.New("no actions block")
	// ErrUnterminated is returned when the end marker is missing or precedes the start marker.
	ErrUnterminated = errors.New("actions block is not terminated")
)

// Extract locates the first actions block in text and decodes it.
func Extract(text string) (*Block, error) {
	start := strings.Index(text, StartMarker)
	if start == -1 {
		return nil, ErrNoBlock
	}
	end := strings.Index(text, EndMarker)
	if end == -1 || end <= start {
		return nil, ErrUnterminated
	}

	payload := strings.TrimSpace(text[start+len(StartMarker) : end])
	block, err := Decode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid actions block: %w", err)
	}
	return block, nil
}

// Parse returns the actions block embedded in text, or nil when there is
// none or it is malformed. A malformed block is the same as no block.
func Parse(text string) *Block {
	block, err := Extract(text)
	if err != nil {
		return nil
	}
	return block
}

// Decode strictly decodes a bare JSON block.
func Decode(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Strip removes the actions block from text for display. While a block is
// still streaming (start marker without end marker) everything from the start
// marker on is hidden.
func Strip(text string) string {
	start := strings.Index(text, StartMarker)
	if start == -1 {
		return text
	}

	before := strings.TrimSpace(text[:start])
	rest := text[start+len(StartMarker):]
	end := strings.Index(rest, EndMarker)
	if end == -1 {
		return before
	}

	after := strings.TrimSpace(rest[end+len(EndMarker):])
	switch {
	case before != "" && after != "":
		return before + "\n\n" + after
	case before != "":
		return before
	default:
		return after
	}
}

// Wrap renders the block in marker form, ready to be appended to a reply.
func Wrap(b *Block) (string, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("could not encode actions: %w", err)
	}
	return StartMarker + "\n" + string(data) + "\n" + EndMarker, nil
}
