// ABOUTME: UserService handles registration, credential checks, profiles, and archival
// ABOUTME: Passwords are stored only as bcrypt hashes
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/harper/mindaid/internal/lock"
	"github.com/harper/mindaid/internal/logging"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RegisterRequest carries the fields needed to create an account
type RegisterRequest struct {
	UserID    string `json:"user_id" validate:"omitempty,max=64,excludesall=/"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// ErrInvalidCredentials is returned when an email and password do not match
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", models.ErrInputValidation)

// UserService manages accounts
type UserService struct {
	store    *sqlite.Storage
	locker   lock.Locker
	validate *validator.Validate
	logger   *zap.Logger
}

// NewUserService creates a UserService
func NewUserService(store *sqlite.Storage, locker lock.Locker, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{store: store, locker: locker, validate: validator.New(), logger: logger}
}

// Register creates a user. The user id is generated when not supplied.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.UserID = strings.TrimSpace(req.UserID)

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInputValidation, describeValidation(err))
	}

	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email %s is already registered", models.ErrInputValidation, req.Email)
	}
	if req.UserID == "" {
		req.UserID = "user_" + uuid.New().String()
	} else if taken, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return nil, err
	} else if taken != nil {
		return nil, fmt.Errorf("%w: user id %s is taken", models.ErrInputValidation, req.UserID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		UserID:           req.UserID,
		PasswordHash:     string(hash),
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		DiagnosisHistory: []models.DiagnosisRecord{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", logging.UserField(user.UserID))
	return user, nil
}

// Authenticate returns the user whose credentials match
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil || user.Archived {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Profile returns the stored user, archived or not
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	return requireUser(ctx, s.store, userID)
}

// Archive soft-deletes a user. Archived users keep their records but can no
// longer start assessments or counseling.
func (s *UserService) Archive(ctx context.Context, userID string) error {
	release, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	user, err := requireUser(ctx, s.store, userID)
	if err != nil {
		return err
	}
	if user.Archived {
		return nil
	}
	user.Archived = true
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("user archived", logging.UserField(userID))
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func requireUser(ctx context.Context, store *sqlite.Storage, userID string) (*models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInputValidation)
	}
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}
	return user, nil
}

func requireActiveUser(ctx context.Context, store *sqlite.Storage, userID string) (*models.User, error) {
	user, err := requireUser(ctx, store, userID)
	if err != nil {
		return nil, err
	}
	if user.Archived {
		return nil, fmt.Errorf("%w: user %s is archived", models.ErrInvalidStateTransition, userID)
	}
	return user, nil
}

// sortedLabels lists answer labels ordered by value, then name
func sortedLabels(labels map[string]int) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for l := range labels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if labels[out[i]] != labels[out[j]] {
			return labels[out[i]] < labels[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
