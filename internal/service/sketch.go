// Package service holds the business rules between the HTTP handlers and
// storage.
//
//	handler (HTTP)  ─►  service (rules)  ─►  repository (SQL)
//	                       │
//	                       └─► executor (runs programs)
//
// Services take primitives and return domain errors from apperror; they
// never see an *http.Request and never pick a status code. That keeps them
// usable from the CLI and easy to test with in-memory fakes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/model"
	"github.com/sakif/livecanvas/internal/repository"
)

const (
	MaxSketchNameLength  = 100
	MaxDescriptionLength = 1000
	MaxCodeLength        = 100_000
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// SketchService manages saved programs. A sketch saved while signed in
// belongs to that user; only the owner may change or delete it.
type SketchService struct {
	repo   repository.SketchRepository
	logger *slog.Logger
}

func NewSketchService(repo repository.SketchRepository, logger *slog.Logger) *SketchService {
	return &SketchService{repo: repo, logger: logger}
}

func (s *SketchService) Create(ctx context.Context, name, code, description, userID string) (*model.Sketch, error) {
	name, description = strings.TrimSpace(name), strings.TrimSpace(description)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "sketch name is required")
	}
	if err := validateSketch(name, code, description); err != nil {
		return nil, err
	}

	sketch := &model.Sketch{Name: name, Code: code, Description: description, UserID: userID}
	if err := s.repo.Create(ctx, sketch); err != nil {
		s.logger.Error("failed to create sketch", slog.String("name", name), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service: creating sketch: %w", err)
	}

	s.logger.Info("sketch created", slog.String("id", sketch.ID), slog.String("user", userID))
	return sketch, nil
}

func (s *SketchService) GetByID(ctx context.Context, id string) (*model.Sketch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "sketch ID is required")
	}
	return s.repo.GetByID(ctx, id)
}

// List pages through sketches, newest first. userID narrows the list to
// one learner's sketches.
func (s *SketchService) List(ctx context.Context, limit, offset int, userID string) ([]model.Sketch, error) {
	limit, offset = clampList(limit, offset)
	sketches, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset, UserID: userID})
	if err != nil {
		s.logger.Error("failed to list sketches", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service: listing sketches: %w", err)
	}
	return sketches, nil
}

// Update replaces code and description. An empty name keeps the old one.
func (s *SketchService) Update(ctx context.Context, id, name, code, description, userID string) (*model.Sketch, error) {
	sketch, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		sketch.Name = name
	}
	sketch.Code = code
	sketch.Description = strings.TrimSpace(description)
	if err := validateSketch(sketch.Name, sketch.Code, sketch.Description); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, sketch); err != nil {
		s.logger.Error("failed to update sketch", slog.String("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service: updating sketch: %w", err)
	}
	s.logger.Info("sketch updated", slog.String("id", sketch.ID))
	return sketch, nil
}

func (s *SketchService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("sketch deleted", slog.String("id", id))
	return nil
}

func (s *SketchService) owned(ctx context.Context, id, userID string) (*model.Sketch, error) {
	sketch, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sketch.OwnedBy(userID) {
		return nil, apperror.Forbidden("you can only change your own sketches")
	}
	return sketch, nil
}

func validateSketch(name, code, description string) error {
	switch {
	case len(name) > MaxSketchNameLength:
		return apperror.ValidationFailed("name",
			fmt.Sprintf("sketch name must be %d characters or less", MaxSketchNameLength))
	case len(code) > MaxCodeLength:
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	case len(description) > MaxDescriptionLength:
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}

func clampList(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}
