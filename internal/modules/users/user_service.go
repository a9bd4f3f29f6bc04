package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crowdship/internal/models"
	"crowdship/pkg/geo"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const tokenTTL = 30 * 24 * time.Hour

type ServiceInterface interface {
	Signup(ctx context.Context, req *models.SignupRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error)
	GoogleLoginURL(state string) string
	GoogleCallback(ctx context.Context, code string) (*models.AuthResponse, error)

	Me(ctx context.Context, userID string) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)
	SwitchRole(ctx context.Context, userID, role string) (*models.User, error)

	SubmitKYC(ctx context.Context, userID string, req *models.KYCSubmitRequest) (*models.CarrierProfile, error)
	GetCarrierProfile(ctx context.Context, userID string) (*models.CarrierProfile, error)
	SetOnline(ctx context.Context, userID string, req *models.OnlineToggleRequest) error
	IsApprovedCarrier(ctx context.Context, userID string) (bool, error)

	ListPendingKYC(ctx context.Context) ([]models.CarrierProfile, error)
	SetKYCStatus(ctx context.Context, userID, status string, reason *string) error
}

type Service struct {
	repo      RepositoryInterface
	jwtSecret string
	oauth     *oauth2.Config

	clock func() time.Time
}

func NewService(repo RepositoryInterface, jwtSecret string, oauth *oauth2.Config) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: jwtSecret,
		oauth:     oauth,
		clock:     time.Now,
	}
}

func newUserID() string {
	return "user_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func (s *Service) Signup(ctx context.Context, req *models.SignupRequest) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("service.Signup: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("service.Signup: %w", err)
	}

	u := &models.User{
		ID:           newUserID(),
		Email:        email,
		Name:         req.Name,
		Role:         models.RoleSender,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    s.clock(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("service.Signup: %w", err)
	}
	return s.authResponse(u)
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	u, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service.Login: %w", err)
	}
	if u.PasswordHash == "" {
		// Google-only account.
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return s.authResponse(u)
}

func (s *Service) GoogleLoginURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// GoogleCallback exchanges the authorization code, pulls the Google profile
// and signs the user in, creating the account on first contact.
func (s *Service) GoogleCallback(ctx context.Context, code string) (*models.AuthResponse, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed", models.ErrInvalidCredentials)
	}

	resp, err := s.oauth.Client(ctx, token).Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("service.GoogleCallback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service.GoogleCallback: userinfo status %d", resp.StatusCode)
	}

	var info struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("service.GoogleCallback: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%w: google profile has no email", models.ErrInvalidCredentials)
	}

	u, err := s.repo.FindByEmail(ctx, strings.ToLower(info.Email))
	if errors.Is(err, models.ErrNotFound) {
		u = &models.User{
			ID:        newUserID(),
			Email:     strings.ToLower(info.Email),
			Name:      info.Name,
			Role:      models.RoleSender,
			IsActive:  true,
			CreatedAt: s.clock(),
		}
		if info.Picture != "" {
			u.Picture = &info.Picture
		}
		if err := s.repo.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("service.GoogleCallback: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("service.GoogleCallback: %w", err)
	}
	return s.authResponse(u)
}

func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.FindByID(ctx, userID)
}

func (s *Service) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.FindByID(ctx, userID)
}

// SwitchRole flips the caller between the two marketplace sides. Carrying
// still requires an approved KYC; the switch itself is unrestricted so a new
// carrier can reach the KYC form.
func (s *Service) SwitchRole(ctx context.Context, userID, role string) (*models.User, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role == models.RoleAdmin {
		return nil, fmt.Errorf("%w: admin role is fixed", models.ErrForbidden)
	}
	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("service.SwitchRole: %w", err)
	}
	u.Role = role
	return u, nil
}

// SubmitKYC files or refiles a carrier application. Refiling resets the
// verification to pending, whatever the previous outcome.
func (s *Service) SubmitKYC(ctx context.Context, userID string, req *models.KYCSubmitRequest) (*models.CarrierProfile, error) {
	p := &models.CarrierProfile{
		UserID:             userID,
		PhoneWhatsApp:      req.PhoneWhatsApp,
		VehicleType:        req.VehicleType,
		IDPhoto:            req.IDPhoto,
		SelfiePhoto:        req.SelfiePhoto,
		VerificationStatus: models.KYCPending,
		CreatedAt:          s.clock(),
	}
	if err := s.repo.UpsertCarrierProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("service.SubmitKYC: %w", err)
	}
	return p, nil
}

func (s *Service) GetCarrierProfile(ctx context.Context, userID string) (*models.CarrierProfile, error) {
	return s.repo.FindCarrierProfile(ctx, userID)
}

// SetOnline toggles carrier availability. Only approved carriers go online;
// the optional destination steers which deliveries look attractive client
// side and is stored verbatim.
func (s *Service) SetOnline(ctx context.Context, userID string, req *models.OnlineToggleRequest) error {
	p, err := s.repo.FindCarrierProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrKYCNotApproved
		}
		return err
	}
	if req.IsOnline && p.VerificationStatus != models.KYCApproved {
		return models.ErrKYCNotApproved
	}
	if req.DestinationLat != nil && req.DestinationLng != nil {
		if err := geo.Validate(geo.Point{Lat: *req.DestinationLat, Lng: *req.DestinationLng}); err != nil {
			return err
		}
	}
	return s.repo.SetOnline(ctx, userID, req.IsOnline, req.DestinationLat, req.DestinationLng)
}

func (s *Service) IsApprovedCarrier(ctx context.Context, userID string) (bool, error) {
	p, err := s.repo.FindCarrierProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.VerificationStatus == models.KYCApproved, nil
}

func (s *Service) ListPendingKYC(ctx context.Context) ([]models.CarrierProfile, error) {
	return s.repo.ListPendingKYC(ctx)
}

func (s *Service) SetKYCStatus(ctx context.Context, userID, status string, reason *string) error {
	if status != models.KYCApproved && status != models.KYCRejected {
		return fmt.Errorf("%w: status must be approved or rejected", models.ErrValidation)
	}
	ok, err := s.repo.SetKYCStatus(ctx, userID, status, reason, s.clock())
	if err != nil {
		return fmt.Errorf("service.SetKYCStatus: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: no pending application for user", models.ErrStateConflict)
	}
	return nil
}

func (s *Service) authResponse(u *models.User) (*models.AuthResponse, error) {
	now := s.clock()
	claims := &models.JwtCustomClaims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &models.AuthResponse{AccessToken: token, User: u}, nil
}
