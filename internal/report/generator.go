package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/healthsphere/healthsphere/internal/brain"
	"github.com/healthsphere/healthsphere/internal/conversation"
	"github.com/healthsphere/healthsphere/internal/store"
)

const reportPrompt = `You are a medical scribe. Based on the consultation transcript provided, write a concise clinical report with the following sections: Chief Complaint, History of Present Illness, Assessment, and Recommendations. Use only information present in the transcript. Note clearly when information is missing. This report is AI-generated and must be reviewed by a licensed clinician.`

const defaultGenerateTimeout = 60 * time.Second

// ErrEmptyConversation is returned when a session has no saved transcript.
var ErrEmptyConversation = errors.New("session has no conversation to summarize")

// Generator turns a saved consultation transcript into a clinical report.
type Generator struct {
	store   store.Store
	adapter brain.Adapter
	timeout time.Duration
}

func NewGenerator(s store.Store, adapter brain.Adapter) *Generator {
	return &Generator{store: s, adapter: adapter, timeout: defaultGenerateTimeout}
}

// Generate builds a report for the session's transcript, saves it, and
// returns the text. Regenerating overwrites any previous report.
func (g *Generator) Generate(ctx context.Context, sessionID string) (string, error) {
	record, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if len(record.Conversation) == 0 {
		return "", ErrEmptyConversation
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.adapter.Reply(ctx, brain.Request{
		SessionID:     sessionID,
		PersonaPrompt: reportPrompt,
		History: []brain.Message{{
			Role:    "user",
			Content: formatTranscript(record.Conversation),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("generate report: empty response")
	}

	if err := g.store.SaveReport(ctx, sessionID, text); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return text, nil
}

func formatTranscript(turns []conversation.Turn) string {
	var b strings.Builder
	b.WriteString("Consultation transcript:\n\n")
	for _, turn := range turns {
		label := "Patient"
		if turn.Role == conversation.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, turn.Content)
	}
	return b.String()
}
