package api

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/filecollab/filecollab/auth"
	"github.com/filecollab/filecollab/internal/slogging"
)

var (
	// ErrUserNotFound is returned when a user lookup matches nothing
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that already exists
	ErrEmailTaken = errors.New("a user with this email already exists")
	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("incorrect email or password")
)

// GormUserStore persists users with GORM
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore creates a GORM-backed user store
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// Create registers a new user with a bcrypt-hashed password
func (s *GormUserStore) Create(ctx context.Context, email, password, fullName string) (*User, error) {
	logger := slogging.Get()

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:          email,
		HashedPassword: hashed,
		FullName:       fullName,
		IsActive:       true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		logger.Error("Failed to create user in database: %v", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Debug("Created user %s", user.ID)
	return user, nil
}

// GetByEmail looks up a user by email
func (s *GormUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// GetByID looks up a user by ID
func (s *GormUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Authenticate checks an email/password pair and returns the user on success.
// Inactive users cannot authenticate.
func (s *GormUserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, user.HashedPassword) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
