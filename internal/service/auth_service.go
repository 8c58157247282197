package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"office_parking/internal/domain"
	"office_parking/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/guregu/null.v4"
)

var ErrInvalidCredentials = errors.New("email or password is incorrect")
var ErrUserAlreadyExists = errors.New("email is already registered")
var ErrTokenInvalid = errors.New("token is invalid or expired")

type AuthService struct {
	profileRepo        repository.ProfileRepository
	jwtSecret          string
	jwtExpirationHours time.Duration
}

func NewAuthService(profileRepo repository.ProfileRepository, jwtSecret string, jwtExpHours time.Duration) *AuthService {
	return &AuthService{
		profileRepo:        profileRepo,
		jwtSecret:          jwtSecret,
		jwtExpirationHours: jwtExpHours,
	}
}

// Register creates an unverified user profile; an admin verifies it before
// the account can book.
func (s *AuthService) Register(ctx context.Context, dto domain.RegisterProfileDTO) (*domain.Profile, error) {
	existing, err := s.profileRepo.FindByEmail(ctx, dto.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("error checking profile: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	profile := &domain.Profile{
		Email:        dto.Email,
		PasswordHash: string(hashedPassword),
		FullName:     null.NewString(dto.FullName, dto.FullName != ""),
		Role:         domain.RoleUser,
		IsVerified:   false,
	}

	created, err := s.profileRepo.Create(ctx, profile)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("error creating profile: %w", err)
	}
	created.PasswordHash = ""
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, dto domain.LoginDTO) (*domain.AuthResponseDTO, error) {
	profile, err := s.profileRepo.FindByEmail(ctx, dto.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error finding profile: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(dto.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expirationTime := time.Now().Add(s.jwtExpirationHours)
	claims := jwt.MapClaims{
		"sub":      fmt.Sprintf("%d", profile.ID),
		"exp":      expirationTime.Unix(),
		"iat":      time.Now().Unix(),
		"role":     string(profile.Role),
		"email":    profile.Email,
		"verified": profile.IsVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("error signing token: %w", err)
	}

	return &domain.AuthResponseDTO{
		Token:      tokenString,
		UserID:     profile.ID,
		Email:      profile.Email,
		Role:       profile.Role,
		IsVerified: profile.IsVerified,
	}, nil
}

// ValidateToken is used by the auth middleware.
func (s *AuthService) ValidateToken(tokenString string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, nil, fmt.Errorf("%w: malformed token", ErrTokenInvalid)
		} else if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, fmt.Errorf("%w: token expired", ErrTokenInvalid)
		} else if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, nil, fmt.Errorf("%w: token not valid yet", ErrTokenInvalid)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, nil, ErrTokenInvalid
	}
	return token, claims, nil
}

// VerifyProfile flips the admin verification flag.
func (s *AuthService) VerifyProfile(ctx context.Context, userID int, verified bool) error {
	if err := s.profileRepo.UpdateVerified(ctx, userID, verified); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("error updating verification: %w", err)
	}
	return nil
}
