package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

func TestAskFoldsDeltasAndClearsStreamingFlag(t *testing.T) {
	gen := &fakeGenerator{chunks: []*genai.GenerateContentResponse{
		textChunk("The "),
		textChunk("answer."),
	}}
	conv := NewConversation(testOrchestrator(gen), nil)
	s := NewSession()

	sawStreaming := false
	conv.Ask(context.Background(), s, "question", func() {
		if len(s.Messages) == 2 && s.Messages[1].Streaming {
			sawStreaming = true
		}
	})

	if len(s.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(s.Messages))
	}
	if s.Messages[0].Role != core.RoleUser || s.Messages[0].Text != "question" {
		t.Fatalf("user message = %+v", s.Messages[0])
	}
	reply := s.Messages[1]
	if reply.Role != core.RoleModel || reply.Text != "The answer." {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.Streaming {
		t.Fatal("streaming flag not cleared")
	}
	if !sawStreaming {
		t.Fatal("placeholder was never observed in streaming state")
	}
}

func TestAskReplacesFailureWithApology(t *testing.T) {
	gen := &fakeGenerator{streamErr: errors.New("backend down")}
	conv := NewConversation(testOrchestrator(gen), nil)
	s := NewSession()

	conv.Ask(context.Background(), s, "question", nil)

	reply := s.Messages[len(s.Messages)-1]
	if reply.Text != apologyMessage {
		t.Fatalf("reply = %q, want the apology", reply.Text)
	}
	if reply.Streaming {
		t.Fatal("streaming flag not cleared after failure")
	}
}

func TestAskGroundedAttachesCitations(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "grounded answer"}}},
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://example.org", Title: "Ref"}},
				},
			},
		}},
	}}
	conv := NewConversation(testOrchestrator(gen), nil)
	s := NewSession()

	conv.AskGrounded(context.Background(), s, "when was the Hijra?", nil)

	reply := s.Messages[len(s.Messages)-1]
	if reply.Text != "grounded answer" {
		t.Fatalf("reply = %q", reply.Text)
	}
	if len(reply.Citations) != 1 || reply.Citations[0].URI != "https://example.org" {
		t.Fatalf("citations = %v", reply.Citations)
	}
}

func TestSessionTitleDerivedFromFirstMessage(t *testing.T) {
	gen := &fakeGenerator{chunks: []*genai.GenerateContentResponse{textChunk("ok")}}
	conv := NewConversation(testOrchestrator(gen), nil)

	s := NewSession()
	if s.Title != defaultTitle {
		t.Fatalf("new session title = %q", s.Title)
	}

	long := strings.Repeat("a", 40)
	conv.Ask(context.Background(), s, long, nil)
	if want := strings.Repeat("a", 30) + "..."; s.Title != want {
		t.Fatalf("title = %q, want %q", s.Title, want)
	}

	// The title sticks to the first message.
	conv.Ask(context.Background(), s, "second question", nil)
	if want := strings.Repeat("a", 30) + "..."; s.Title != want {
		t.Fatalf("title changed on second message: %q", s.Title)
	}
}

func TestDeriveTitleShortMessageUnchanged(t *testing.T) {
	if got := DeriveTitle("short"); got != "short" {
		t.Fatalf("DeriveTitle = %q", got)
	}
}

func TestSystemInstructionStyleAndLanguage(t *testing.T) {
	base := SystemInstruction(core.LiveConfig{})
	if !strings.Contains(base, "warm, and conversational") {
		t.Fatalf("default style missing: %q", base)
	}

	concise := SystemInstruction(core.LiveConfig{ResponseStyle: core.StyleConcise})
	if !strings.Contains(concise, "brief, direct, and to the point") {
		t.Fatalf("concise style missing: %q", concise)
	}

	detailed := SystemInstruction(core.LiveConfig{ResponseStyle: core.StyleDetailed})
	if !strings.Contains(detailed, "comprehensive, detailed, and academic") {
		t.Fatalf("detailed style missing: %q", detailed)
	}

	ar := SystemInstruction(core.LiveConfig{Language: "Arabic"})
	if !strings.Contains(ar, "IMPORTANT: You must converse in Arabic.") {
		t.Fatalf("language directive missing: %q", ar)
	}
	if strings.Contains(base, "IMPORTANT: You must converse in") {
		t.Fatal("language directive present without a language")
	}
}
