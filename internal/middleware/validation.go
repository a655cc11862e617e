package middleware

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxPromptLength = 32 * 1024
	maxSourceLength = 256 * 1024
	maxTitleLength  = 256
)

// ValidateSessionID validates a session ID path parameter.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session id")
	}
	return nil
}

// ValidateVersionID validates a version ID path parameter.
func ValidateVersionID(id string) error {
	if id == "" {
		return fmt.Errorf("version id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid version id")
	}
	return nil
}

// ValidatePrompt validates a chat prompt body.
func ValidatePrompt(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	if len(content) > maxPromptLength {
		return fmt.Errorf("content exceeds maximum length of %d bytes", maxPromptLength)
	}
	return nil
}

// ValidateSourceText validates generation source material.
func ValidateSourceText(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("source_text is required")
	}
	if len(source) > maxSourceLength {
		return fmt.Errorf("source_text exceeds maximum length of %d bytes", maxSourceLength)
	}
	return nil
}

// ValidateTitle validates a session title.
func ValidateTitle(title string) error {
	if len(title) > maxTitleLength {
		return fmt.Errorf("title exceeds maximum length of %d characters", maxTitleLength)
	}
	return nil
}
