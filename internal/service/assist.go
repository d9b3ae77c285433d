package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/assist"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

const (
	textCorrectionPrompt = `You proofread titles of programming templates. Fix spelling, grammar and ` +
		`capitalization of the title and subtitle without changing their meaning. Reply with a JSON ` +
		`object {"title": "...", "subtitle": "..."} and nothing else.`
	codeCorrectionPrompt = `You fix bugs in short code snippets. Return only the corrected code, ` +
		`with no explanation and no markdown fences. Keep the author's style. If the code is ` +
		`already correct, return it unchanged.`
)

// Completer sends one prompt to a chat-completions endpoint.
// *assist.Client implements it.
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// TextCorrection is the corrected title/subtitle pair.
type TextCorrection struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// AssistService passes template text and code through the inference endpoint.
// Nothing is stored, except by CorrectBlock.
type AssistService struct {
	completer Completer
	templates repository.TemplateRepository
	logger    *slog.Logger
}

func NewAssistService(completer Completer, templates repository.TemplateRepository, logger *slog.Logger) *AssistService {
	return &AssistService{completer: completer, templates: templates, logger: logger}
}

// CorrectText proofreads a title and subtitle.
func (s *AssistService) CorrectText(ctx context.Context, title, subtitle string) (*TextCorrection, error) {
	title = strings.TrimSpace(title)
	subtitle = strings.TrimSpace(subtitle)
	if title == "" && subtitle == "" {
		return nil, apperror.ValidationFailed("title", "title or subtitle is required")
	}
	if len(title) > MaxTitleLength || len(subtitle) > MaxSubtitleLength {
		return nil, apperror.ValidationFailed("title", "title or subtitle is too long")
	}

	input, _ := json.Marshal(TextCorrection{Title: title, Subtitle: subtitle})
	reply, err := s.completer.Complete(ctx, textCorrectionPrompt, string(input), true)
	if err != nil {
		return nil, s.upstream(err, "correct text")
	}

	var out TextCorrection
	if err := json.Unmarshal([]byte(stripFences(reply)), &out); err != nil {
		s.logger.Error("assistant returned malformed text correction", slog.String("reply", reply))
		return nil, apperror.Upstream("assistant", fmt.Errorf("decoding reply: %w", err))
	}
	if out.Title == "" {
		out.Title = title
	}
	if out.Subtitle == "" {
		out.Subtitle = subtitle
	}
	return &out, nil
}

// CorrectCode returns a corrected version of code. description is passed
// along as context for the model.
func (s *AssistService) CorrectCode(ctx context.Context, code, description string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", apperror.ValidationFailed("code", "code is required")
	}
	if len(code) > MaxCodeLength {
		return "", apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}

	var prompt strings.Builder
	if d := strings.TrimSpace(description); d != "" {
		prompt.WriteString("Description: ")
		prompt.WriteString(d)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString(code)

	reply, err := s.completer.Complete(ctx, codeCorrectionPrompt, prompt.String(), false)
	if err != nil {
		return "", s.upstream(err, "correct code")
	}
	return stripFences(reply), nil
}

// CorrectBlock corrects one block of the owner's template and stores the
// result next to the original code.
func (s *AssistService) CorrectBlock(ctx context.Context, templateID, ownerID string, position int) (*model.CodeBlock, error) {
	t, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if t.UserID != ownerID {
		return nil, apperror.Forbidden("only the owner can correct a template's code")
	}
	if position < 0 || position >= len(t.Blocks) {
		return nil, apperror.NotFound("code block", fmt.Sprint(position))
	}

	block := t.Blocks[position]
	corrected, err := s.CorrectCode(ctx, block.Code, block.Description)
	if err != nil {
		return nil, err
	}
	if err := s.templates.SetCorrectedCode(ctx, templateID, ownerID, position, corrected); err != nil {
		return nil, err
	}
	block.CorrectedCode = &corrected
	return &block, nil
}

func (s *AssistService) upstream(err error, action string) error {
	if errors.Is(err, assist.ErrTimeout) {
		s.logger.Warn("assistant timed out", slog.String("action", action))
		return apperror.Timeout("assistant")
	}
	s.logger.Error("assistant call failed",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
	return apperror.Upstream("assistant", err)
}

// stripFences removes a surrounding markdown code fence, which models add
// even when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimRight(s, " \n"), "```")
	return strings.TrimRight(s, "\n")
}
