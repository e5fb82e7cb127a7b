package chat

import (
	"testing"
	"time"
)

func TestUserMessageCount(t *testing.T) {
	now := time.Now()
	sess := &Session{ChatID: "chat-1"}
	sess.Append(RoleSystem, "You are a helpful assistant.", now)
	if got := sess.UserMessageCount(); got != 0 {
		t.Fatalf("expected 0 user messages, got %d", got)
	}
	sess.Append(RoleUser, "Hello", now)
	sess.Append(RoleAssistant, "Hi!", now)
	sess.Append(RoleUser, "How are you?", now)
	if got := sess.UserMessageCount(); got != 2 {
		t.Fatalf("expected 2 user messages, got %d", got)
	}
}

func TestVisible_PreservesOrder(t *testing.T) {
	now := time.Now()
	sess := &Session{ChatID: "chat-1"}
	sess.Append(RoleSystem, "sys", now)
	sess.Append(RoleAssistant, "a1", now)
	sess.Append(RoleUser, "u1", now)

	all := sess.Visible(false)
	if len(all) != 3 || all[0].Role != RoleSystem || all[1].Content != "a1" || all[2].Content != "u1" {
		t.Fatalf("unexpected visible messages: %+v", all)
	}

	filtered := sess.Visible(true)
	if len(filtered) != 2 || filtered[0].Content != "a1" || filtered[1].Content != "u1" {
		t.Fatalf("unexpected filtered messages: %+v", filtered)
	}
}

func TestVisible_ReturnsCopy(t *testing.T) {
	sess := &Session{ChatID: "chat-1"}
	sess.Append(RoleUser, "u1", time.Now())
	out := sess.Visible(false)
	out[0].Content = "mutated"
	if sess.Messages[0].Content != "u1" {
		t.Fatal("Visible leaked the internal slice")
	}
}
