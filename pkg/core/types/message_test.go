package types

import "testing"

func TestValidateHistory(t *testing.T) {
	ok := []Message{
		SystemMessage("be brief"),
		HumanMessage("hi"),
		AssistantMessage("hello"),
	}
	if err := ValidateHistory(ok); err != nil {
		t.Fatalf("ValidateHistory(ok)=%v", err)
	}
	if err := ValidateHistory(nil); err != nil {
		t.Fatalf("ValidateHistory(nil)=%v", err)
	}

	late := []Message{HumanMessage("hi"), SystemMessage("late")}
	if err := ValidateHistory(late); err == nil {
		t.Fatalf("expected error for system message after position 0")
	}

	unknown := []Message{{Role: "tool", Content: "x"}}
	if err := ValidateHistory(unknown); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{SystemMessage("sys"), HumanMessage("q")})
	if system != "sys" {
		t.Fatalf("system=%q, want sys", system)
	}
	if len(rest) != 1 || rest[0].Role != RoleHuman {
		t.Fatalf("rest=%+v", rest)
	}

	system, rest = SplitSystem([]Message{HumanMessage("q")})
	if system != "" || len(rest) != 1 {
		t.Fatalf("system=%q rest=%+v", system, rest)
	}
}
