package program_test

import (
	"strings"
	"testing"

	"gymdesk/internal/domain/program"
)

// TestProgram_Validate tests validation of Program.
func TestProgram_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prog    program.Program
		wantErr bool
	}{
		{"valid beginner program", program.Program{Name: "Strength 101", Level: program.LevelBeginner, DurationWeeks: 8}, false},
		{"empty name", program.Program{Name: "", Level: program.LevelBeginner}, true},
		{"whitespace name", program.Program{Name: "   ", Level: program.LevelAdvanced}, true},
		{"invalid level", program.Program{Name: "Senior", Level: "senior"}, true},
		{"negative duration", program.Program{Name: "Cut", Level: program.LevelAdvanced, DurationWeeks: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.prog.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestProgram_RenderDescription verifies markdown rendering and HTML escaping.
func TestProgram_RenderDescription(t *testing.T) {
	p := program.Program{Description: "**Heavy** days\n<script>alert(1)</script>"}
	html, err := p.RenderDescription()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, "<strong>Heavy</strong>") {
		t.Errorf("expected bold markup, got %s", html)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("expected raw HTML to be dropped, got %s", html)
	}
}
