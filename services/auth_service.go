package services

import (
	"fmt"
	"time"

	"nexchat/auth"
	"nexchat/domain"
	"nexchat/errors"
	"nexchat/repositories"

	"github.com/samber/lo"
)

const registerWindow = 24 * time.Hour

type IAuthService interface {
	Register(clientIP string, req auth.RegisterRequest) (Session, error)
	Login(req auth.LoginRequest) (Session, error)
	People() ([]domain.Person, error)
}

// Session is what a successful register or login hands back to the
// transport: the signed token and the identity it carries.
type Session struct {
	Token    string          `json:"token"`
	Identity domain.Identity `json:"user"`
}

type AuthService struct {
	userRepository     repositories.IUserRepository
	throttleRepository repositories.IThrottleRepository
	tokens             *auth.JWTService
	registerLimit      int
}

func NewAuthService(
	userRepository repositories.IUserRepository,
	throttleRepository repositories.IThrottleRepository,
	tokens *auth.JWTService,
	registerLimit int,
) IAuthService {
	return &AuthService{
		userRepository:     userRepository,
		throttleRepository: throttleRepository,
		tokens:             tokens,
		registerLimit:      registerLimit,
	}
}

func (s *AuthService) Register(clientIP string, req auth.RegisterRequest) (Session, error) {
	req = req.Normalize()

	// 1. Validate business rules before any expensive cryptographic operation
	if err := auth.ValidateRegister(req); err != nil {
		return Session{}, err
	}

	// 2. Throttle account creation per client address
	if s.registerLimit > 0 {
		allowed, err := s.throttleRepository.Hit("register:"+clientIP, s.registerLimit, registerWindow)
		if err != nil {
			return Session{}, fmt.Errorf("throttle failed: %w", err)
		}
		if !allowed {
			return Session{}, errors.ErrTooManyRequests
		}
	}

	// 3. Hash in the service layer so the repository never sees a plain password
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	// 4. Persist, propagating ErrUserAlreadyExists if the name is taken
	userID, err := s.userRepository.CreateUser(req.Username, hashedPassword)
	if err != nil {
		return Session{}, err
	}
	return s.issue(domain.Identity{UserID: userID, Username: req.Username})
}

func (s *AuthService) Login(req auth.LoginRequest) (Session, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return Session{}, err
	}

	user, err := s.userRepository.GetUserByUsername(req.Username)
	if err != nil {
		// Generic error to prevent user enumeration
		return Session{}, errors.ErrInvalidCredentials
	}
	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}
	return s.issue(domain.Identity{UserID: user.ID, Username: user.Username})
}

// People lists every registered account.
func (s *AuthService) People() ([]domain.Person, error) {
	users, err := s.userRepository.ListUsers()
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u repositories.User, _ int) domain.Person {
		return domain.Person{ID: u.ID, Username: u.Username}
	}), nil
}

func (s *AuthService) issue(identity domain.Identity) (Session, error) {
	token, err := s.tokens.GenerateToken(identity)
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}
	return Session{Token: token, Identity: identity}, nil
}
