package database

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TenantService provides tenant session and billing logic.
type TenantService struct {
	repo      *Repository
	jwtSecret []byte
}

// NewTenantService creates a new tenant service
func NewTenantService(repo *Repository, jwtSecret string) *TenantService {
	return &TenantService{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// ResolveTenant returns the tenant for an ID, bootstrapping a workspace on
// first contact.
func (s *TenantService) ResolveTenant(tenantID, name string) (*Tenant, error) {
	if name == "" {
		name = "Workspace"
	}
	tenant, err := s.repo.GetOrCreateTenant(tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}
	return tenant, nil
}

// GenerateSessionToken generates a JWT token for the tenant session
func (s *TenantService) GenerateSessionToken(tenantID string) (string, error) {
	claims := jwt.MapClaims{
		"tenant_id": tenantID,
		"exp":       time.Now().Add(24 * time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the tenant ID
func (s *TenantService) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		tenantID, ok := claims["tenant_id"].(string)
		if !ok {
			return "", fmt.Errorf("tenant_id not found in token")
		}
		return tenantID, nil
	}

	return "", fmt.Errorf("invalid token")
}

// UpgradeTenantToPaid upgrades a tenant to the paid plan
func (s *TenantService) UpgradeTenantToPaid(tenantID, stripeCustomerID string) error {
	return s.repo.UpdateTenantPlan(tenantID, true, stripeCustomerID)
}

// CreatePaymentRecord creates a payment record in the database
func (s *TenantService) CreatePaymentRecord(payment *Payment) error {
	return s.repo.CreatePayment(payment)
}
