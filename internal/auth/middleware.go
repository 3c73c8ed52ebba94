package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	StaffID string
	Role    domain.StaffRole
	// Staff is the directory record, nil when the caller is not registered locally.
	Staff *domain.StaffMember
}

// Actor converts the principal to the actor recorded on changes.
func (p *Principal) Actor() domain.Actor {
	return domain.StaffActor(p.StaffID)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Subject != domain.SubjectTypeStaff {
		return apperrors.NewUnauthorized("unknown subject")
	}

	principal := &Principal{StaffID: claims.SubjectID, Role: claims.Role}
	if m.staff != nil {
		staff, err := m.staff.GetByID(c.UserContext(), claims.SubjectID)
		switch {
		case err == nil:
			if !staff.Active {
				return apperrors.NewUnauthorized("staff member is inactive")
			}
			principal.Staff = staff
			principal.Role = staff.Role
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return apperrors.MapError(err)
		}
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
