package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tonytopp/shelly-home/internal/db"
)

// ErrInvalidCredentials masks which part of a login attempt failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

const tokenLifetime = 24 * time.Hour

type AuthModule struct {
	db        *db.DB
	jwtSecret string
}

func NewAuthModule(database *db.DB, jwtSecret string) *AuthModule {
	return &AuthModule{db: database, jwtSecret: jwtSecret}
}

// Register creates a user and returns a signed token for the new session.
func (a *AuthModule) Register(ctx context.Context, username, password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	userID, err := a.db.InsertUser(ctx, username, string(hashed))
	if err != nil {
		return "", err
	}
	return a.generateJWT(userID)
}

// Login verifies credentials and returns a signed token.
func (a *AuthModule) Login(ctx context.Context, username, password string) (string, error) {
	userID, passwordHash, err := a.db.GetUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.generateJWT(userID)
}

func (a *AuthModule) generateJWT(userID int64) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(tokenLifetime).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.jwtSecret))
}

// ValidateToken checks a bearer token and returns the user id it carries.
func (a *AuthModule) ValidateToken(tokenString string) (string, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return "", errors.New("invalid user_id in token")
	}
	return strconv.FormatInt(int64(userIDFloat), 10), nil
}
