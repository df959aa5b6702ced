package program

import (
	"bytes"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"gymdesk/internal/domain/apperr"
)

// Level constants
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// ValidLevels contains all valid program levels.
var ValidLevels = []string{LevelBeginner, LevelIntermediate, LevelAdvanced}

// mdRenderer renders descriptions; raw HTML in input is escaped (WithUnsafe is not set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Program is a multi-week training program.
type Program struct {
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"` // markdown
	Level         string    `json:"level"`
	DurationWeeks int       `json:"durationWeeks,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
}

// Validate checks if the Program has valid data.
// PRE: Program struct is populated
// POST: Returns nil if valid, ValidationError otherwise
func (p Program) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("name", "program name cannot be empty")
	}
	if !isValidLevel(p.Level) {
		return apperr.Validation("level", "level must be 'beginner', 'intermediate', or 'advanced'")
	}
	if p.DurationWeeks < 0 {
		return apperr.Validation("durationWeeks", "duration cannot be negative")
	}
	return nil
}

// RecordID returns the program id.
func (p Program) RecordID() string { return p.ID }

// WithID returns a copy carrying id.
func (p Program) WithID(id string) Program {
	p.ID = id
	return p
}

// RenderDescription converts the markdown description to HTML.
// PRE: none
// POST: returns safe HTML; raw HTML in the description is escaped
func (p Program) RenderDescription() (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(p.Description), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isValidLevel(l string) bool {
	for _, v := range ValidLevels {
		if v == l {
			return true
		}
	}
	return false
}
