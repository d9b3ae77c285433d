package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/repository"
	"github.com/sakif/devxboard/internal/runner"
)

// RunnerService executes a template's code block for anyone who can see
// the template.
type RunnerService struct {
	templates repository.TemplateRepository
	sharing   *SharingService
	runner    runner.Runner
	logger    *slog.Logger
}

func NewRunnerService(templates repository.TemplateRepository, sharing *SharingService, r runner.Runner, logger *slog.Logger) *RunnerService {
	return &RunnerService{templates: templates, sharing: sharing, runner: r, logger: logger}
}

// RunBlock runs block position of the template. With corrected set, the
// assistant's corrected code is run instead when the block has one.
func (s *RunnerService) RunBlock(ctx context.Context, templateID string, position int, viewerID string, corrected bool) (*runner.Result, error) {
	t, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := s.sharing.Authorize(ctx, t, viewerID); err != nil {
		return nil, err
	}
	if position < 0 || position >= len(t.Blocks) {
		return nil, apperror.NotFound("code block", fmt.Sprint(position))
	}

	block := t.Blocks[position]
	code := block.Code
	if corrected && block.CorrectedCode != nil {
		code = *block.CorrectedCode
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("code", "this block has no code to run")
	}

	res, err := s.runner.Run(ctx, runner.Request{Code: code})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.logger.Error("code block run failed",
			slog.String("template_id", templateID),
			slog.Int("position", position),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("code runner", err)
	}
	return res, nil
}
