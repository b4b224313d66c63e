package chat

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

const chatTemperature = 0.7

// Models names the model per operation.
type Models struct {
	Chat   string
	Search string
	Image  string
}

// generator is the slice of the genai client the orchestrator uses,
// satisfied by *genai.Models and by test fakes.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Orchestrator issues chat, search, and image-edit requests against Gemini.
type Orchestrator struct {
	gen    generator
	models Models
	logger *slog.Logger
}

// NewOrchestrator builds a genai-backed orchestrator.
func NewOrchestrator(ctx context.Context, apiKey string, models Models, logger *slog.Logger) (*Orchestrator, error) {
	if apiKey == "" {
		return nil, core.NewInvalidRequestError("api key is required", nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, core.NewConnectError("create genai client", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{gen: client.Models, models: models, logger: logger}, nil
}

// StreamChat sends msg with the given history and invokes emit for every
// text delta as it arrives. The returned error is terminal: deltas already
// emitted stand, and the caller decides how to present the failure.
func (o *Orchestrator) StreamChat(ctx context.Context, history []core.Message, msg string, emit func(delta string)) error {
	if strings.TrimSpace(msg) == "" {
		return core.NewInvalidRequestError("empty message", nil)
	}
	contents := historyToContents(history)
	contents = append(contents, genai.NewContentFromText(msg, genai.RoleUser))

	temp := float32(chatTemperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(core.LiveConfig{ResponseStyle: core.StyleConversational}), ""),
		Temperature:       &temp,
	}

	for chunk, err := range o.gen.GenerateContentStream(ctx, o.models.Chat, contents, cfg) {
		if err != nil {
			return core.NewAPIError("chat stream", err)
		}
		for _, text := range candidateTexts(chunk) {
			emit(text)
		}
	}
	return nil
}

// SearchGrounded answers query with the Google Search tool and returns the
// citations backing the answer. Grounding chunks without a link are dropped.
func (o *Orchestrator) SearchGrounded(ctx context.Context, query string) (string, []core.Citation, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil, core.NewInvalidRequestError("empty query", nil)
	}
	contents := []*genai.Content{genai.NewContentFromText(query, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := o.gen.GenerateContent(ctx, o.models.Search, contents, cfg)
	if err != nil {
		return "", nil, core.NewAPIError("search query", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil, core.NewAPIError("search query: empty response", nil)
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	var citations []core.Citation
	if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
		for _, gc := range gm.GroundingChunks {
			if gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			title := gc.Web.Title
			if title == "" {
				title = "Source"
			}
			citations = append(citations, core.Citation{URI: gc.Web.URI, Title: title})
		}
	}
	return sb.String(), citations, nil
}

// EditImage sends an image plus an edit prompt and returns the first edited
// image in the response along with any commentary text.
func (o *Orchestrator) EditImage(ctx context.Context, image []byte, mimeType, prompt string) ([]byte, string, error) {
	if len(image) == 0 {
		return nil, "", core.NewInvalidRequestError("empty image", nil)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, "", core.NewInvalidRequestError("empty prompt", nil)
	}
	contents := []*genai.Content{{
		Role: string(genai.RoleUser),
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
			{Text: prompt},
		},
	}}
	resp, err := o.gen.GenerateContent(ctx, o.models.Image, contents, nil)
	if err != nil {
		return nil, "", core.NewAPIError("image edit", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", core.NewAPIError("image edit: empty response", nil)
	}

	var (
		edited []byte
		sb     strings.Builder
	)
	for _, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p.InlineData != nil && edited == nil:
			edited = p.InlineData.Data
		case p.Text != "":
			sb.WriteString(p.Text)
		}
	}
	if edited == nil {
		return nil, sb.String(), core.NewAPIError("image edit: no image in response", nil)
	}
	return edited, sb.String(), nil
}

func historyToContents(history []core.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if m.Text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == core.RoleModel {
			role = genai.Role(genai.RoleModel)
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	return contents
}

func candidateTexts(resp *genai.GenerateContentResponse) []string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var texts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return texts
}
