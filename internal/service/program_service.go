package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kenseikai/dojo-api/internal/models"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
)

type programRepository interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	FindByID(ctx context.Context, id string) (*models.Program, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
	SetActive(ctx context.Context, id string, active bool) error
}

// ProgramRequest carries create/update payloads for programs.
type ProgramRequest struct {
	Name              string  `json:"name" validate:"required"`
	Description       string  `json:"description"`
	MaxCapacity       int     `json:"max_capacity" validate:"min=0"`
	SessionsPerWeek   int     `json:"sessions_per_week" validate:"min=0"`
	MinSessionsWeek   int     `json:"min_sessions_week" validate:"min=0"`
	MinAge            *int    `json:"min_age" validate:"omitempty,min=0"`
	MaxAge            *int    `json:"max_age" validate:"omitempty,min=0"`
	MinBeltRank       *string `json:"min_belt_rank"`
	MaxBeltRank       *string `json:"max_belt_rank"`
	GenderRestriction string  `json:"gender_restriction" validate:"omitempty,oneof=any male female"`
	SpecialNeeds      bool    `json:"special_needs"`
	PrerequisiteID    *string `json:"prerequisite_id"`
	MonthlyFee        int64   `json:"monthly_fee" validate:"min=0"`
	YearlyFee         int64   `json:"yearly_fee" validate:"min=0"`
	RegistrationFee   int64   `json:"registration_fee" validate:"min=0"`
	PerSessionFee     int64   `json:"per_session_fee" validate:"min=0"`
}

// ProgramService manages the program catalog.
type ProgramService struct {
	repo      programRepository
	validator *validator.Validate
}

func NewProgramService(repo programRepository, validate *validator.Validate) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	return &ProgramService{repo: repo, validator: validate}
}

func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, *models.Pagination, error) {
	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return programs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *ProgramService) Get(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return program, nil
}

func (s *ProgramService) Create(ctx context.Context, req ProgramRequest) (*models.Program, error) {
	program, err := s.buildProgram(req)
	if err != nil {
		return nil, err
	}
	program.Active = true
	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}
	return program, nil
}

func (s *ProgramService) Update(ctx context.Context, id string, req ProgramRequest) (*models.Program, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	program, err := s.buildProgram(req)
	if err != nil {
		return nil, err
	}
	program.ID = existing.ID
	program.Active = existing.Active
	program.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}
	return program, nil
}

// Deactivate soft-deletes the program. Existing enrollments are untouched;
// new enrollments against the program are rejected by eligibility checks.
func (s *ProgramService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate program")
	}
	return nil
}

func (s *ProgramService) buildProgram(req ProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	if req.MinAge != nil && req.MaxAge != nil && *req.MinAge > *req.MaxAge {
		return nil, appErrors.Clone(appErrors.ErrValidation, "min_age must not exceed max_age")
	}
	minBelt, err := parseBelt(req.MinBeltRank)
	if err != nil {
		return nil, err
	}
	maxBelt, err := parseBelt(req.MaxBeltRank)
	if err != nil {
		return nil, err
	}
	if minBelt != nil && maxBelt != nil && minBelt.Ordinal() > maxBelt.Ordinal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "min_belt_rank must not exceed max_belt_rank")
	}
	restriction := req.GenderRestriction
	if restriction == "" {
		restriction = "any"
	}
	return &models.Program{
		Name:            req.Name,
		Description:     req.Description,
		MaxCapacity:     req.MaxCapacity,
		SessionsPerWeek: req.SessionsPerWeek,
		MinSessionsWeek: req.MinSessionsWeek,
		MinAge:          req.MinAge,
		MaxAge:          req.MaxAge,
		MinBeltRank:     minBelt,
		MaxBeltRank:     maxBelt,
		Gender:          models.GenderRestriction(restriction),
		SpecialNeeds:    req.SpecialNeeds,
		PrerequisiteID:  req.PrerequisiteID,
		MonthlyFee:      req.MonthlyFee,
		YearlyFee:       req.YearlyFee,
		RegistrationFee: req.RegistrationFee,
		PerSessionFee:   req.PerSessionFee,
	}, nil
}

func parseBelt(raw *string) (*models.BeltRank, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	rank := models.BeltRank(*raw)
	if !rank.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown belt rank: "+*raw)
	}
	return &rank, nil
}
