package gemini

import (
	"testing"

	"github.com/nstogner/crew/pkg/domain"
)

func TestConvert(t *testing.T) {
	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: "You are an engineer."},
		{Role: domain.RoleUser, Content: "Build it."},
		{Role: domain.RoleAssistant, Content: "<exec>main.py</exec>"},
		{Role: domain.RoleSystem, Content: "Execution results:\nExecution of main.py succeeded.", ExecutionFailed: false},
		{Role: domain.RoleUser, Content: ""},
	}

	system, contents := convert(msgs)
	if system == nil || system.Parts[0].Text != "You are an engineer." {
		t.Fatalf("system instruction = %+v", system)
	}
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	wantRoles := []string{"user", "model", "user"}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
	if contents[2].Parts[0].Text != msgs[3].Content {
		t.Errorf("execution summary not forwarded: %q", contents[2].Parts[0].Text)
	}
}

func TestConvertWithoutSystemPrompt(t *testing.T) {
	system, contents := convert([]domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	if system != nil {
		t.Errorf("system = %+v, want nil", system)
	}
	if len(contents) != 1 {
		t.Errorf("got %d contents, want 1", len(contents))
	}
}
