package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cr4all/supportservices/config"
	"github.com/cr4all/supportservices/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	Db          *gorm.DB
	jwtSecret   []byte
	tokenExpiry time.Duration
}

func NewAuthService(db *gorm.DB, config *config.AuthConfig) *AuthService {
	return &AuthService{
		Db:          db,
		jwtSecret:   []byte(config.JWTSecret),
		tokenExpiry: config.Expiry(),
	}
}

type Claims struct {
	OperatorID uint   `json:"operator_id"`
	Username   string `json:"username"`
	jwt.RegisteredClaims
}

func (s *AuthService) GenerateToken(operator *models.Operator) (*models.AuthResponse, error) {
	now := time.Now()
	claims := &Claims{
		OperatorID: operator.ID,
		Username:   operator.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenExpiry.Seconds()),
		Operator:    *operator,
	}, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// Authenticate resolves the operator behind a token.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.Operator, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	var operator models.Operator
	if err := s.Db.WithContext(ctx).First(&operator, claims.OperatorID).Error; err != nil {
		return nil, err
	}
	return &operator, nil
}

func (s *AuthService) RegisterOperator(ctx context.Context, username, password string) (*models.Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	var existing int64
	if err := s.Db.WithContext(ctx).Model(&models.Operator{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrOperatorExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	operator := &models.Operator{
		Username: username,
		Password: string(hashedPassword),
	}
	if err := s.Db.WithContext(ctx).Create(operator).Error; err != nil {
		return nil, fmt.Errorf("create operator: %w", err)
	}
	return operator, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var operator models.Operator
	if err := s.Db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&operator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.GenerateToken(&operator)
}
