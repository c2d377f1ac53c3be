package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kenseikai/dojo-api/internal/models"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	UpdateBeltRank(ctx context.Context, id string, rank models.BeltRank) error
	FindFamilyByID(ctx context.Context, id string) (*models.Family, error)
	CreateFamily(ctx context.Context, family *models.Family) error
	UpdateFamily(ctx context.Context, family *models.Family) error
}

// StudentRequest carries create/update payloads for students.
type StudentRequest struct {
	FamilyID     string  `json:"family_id" validate:"required"`
	FirstName    string  `json:"first_name" validate:"required"`
	LastName     string  `json:"last_name" validate:"required"`
	Gender       string  `json:"gender" validate:"required,oneof=male female"`
	BirthDate    string  `json:"birth_date" validate:"required"`
	BeltRank     *string `json:"belt_rank"`
	SpecialNeeds bool    `json:"special_needs"`
}

// FamilyRequest carries create/update payloads for families.
type FamilyRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// StudentService manages students, their families and belt progression.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) Create(ctx context.Context, req StudentRequest) (*models.Student, error) {
	student, err := s.buildStudent(ctx, req)
	if err != nil {
		return nil, err
	}
	student.Active = true
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student, err := s.buildStudent(ctx, req)
	if err != nil {
		return nil, err
	}
	student.ID = existing.ID
	student.Active = existing.Active
	if student.BeltRank == "" {
		student.BeltRank = existing.BeltRank
	}
	student.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// PromoteBelt advances a student exactly one rank. Demotions and rank skips
// go through Update instead.
func (s *StudentService) PromoteBelt(ctx context.Context, id string, target models.BeltRank) (*models.Student, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown belt rank: "+string(target))
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Ordinal() != student.BeltRank.Ordinal()+1 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("cannot promote from %s to %s", student.BeltRank, target))
	}
	if err := s.repo.UpdateBeltRank(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote student")
	}
	s.logger.Info("belt promotion",
		zap.String("student_id", id),
		zap.String("from", string(student.BeltRank)),
		zap.String("to", string(target)))
	student.BeltRank = target
	return student, nil
}

func (s *StudentService) GetFamily(ctx context.Context, id string) (*models.Family, error) {
	family, err := s.repo.FindFamilyByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "family not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load family")
	}
	return family, nil
}

func (s *StudentService) CreateFamily(ctx context.Context, req FamilyRequest) (*models.Family, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid family payload")
	}
	family := &models.Family{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	}
	if err := s.repo.CreateFamily(ctx, family); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create family")
	}
	return family, nil
}

func (s *StudentService) UpdateFamily(ctx context.Context, id string, req FamilyRequest) (*models.Family, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid family payload")
	}
	family, err := s.GetFamily(ctx, id)
	if err != nil {
		return nil, err
	}
	family.Name = req.Name
	family.Email = req.Email
	family.Phone = req.Phone
	family.Address = req.Address
	family.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateFamily(ctx, family); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update family")
	}
	return family, nil
}

func (s *StudentService) buildStudent(ctx context.Context, req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must be YYYY-MM-DD")
	}
	if _, err := s.repo.FindFamilyByID(ctx, req.FamilyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "family not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load family")
	}
	var rank models.BeltRank
	if req.BeltRank != nil && *req.BeltRank != "" {
		rank = models.BeltRank(*req.BeltRank)
		if !rank.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown belt rank: "+*req.BeltRank)
		}
	}
	return &models.Student{
		FamilyID:     req.FamilyID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Gender:       req.Gender,
		BirthDate:    birthDate,
		BeltRank:     rank,
		SpecialNeeds: req.SpecialNeeds,
	}, nil
}
