package services

import (
	"errors"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

// AuthService issues account tokens. An account gives a participant a stable
// identity across sessions, which hosting requires.
type AuthService struct {
	db        *gorm.DB
	jwtSecret []byte
}

func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, jwtSecret: []byte(jwtSecret)}
}

func (s *AuthService) Register(username, password string) (string, *models.Account, error) {
	var existing models.Account
	if err := s.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return "", nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	account := models.Account{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.db.Create(&account).Error; err != nil {
		return "", nil, err
	}

	token, err := s.GenerateToken(account.ID)
	if err != nil {
		return "", nil, err
	}
	return token, &account, nil
}

func (s *AuthService) Login(username, password string) (string, *models.Account, error) {
	var account models.Account
	if err := s.db.Where("username = ?", username).First(&account).Error; err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(account.ID)
	if err != nil {
		return "", nil, err
	}
	return token, &account, nil
}

func (s *AuthService) Account(id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *AuthService) GenerateToken(accountID string) (string, error) {
	claims := jwt.MapClaims{
		"account_id": accountID,
		"exp":        time.Now().Add(tokenTTL).Unix(),
		"iat":        time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	accountID, ok := claims["account_id"].(string)
	if !ok || accountID == "" {
		return "", ErrInvalidToken
	}

	return accountID, nil
}
