package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthFixture(t *testing.T) (*AuthService, *memberRepoStub) {
	t.Helper()
	members := newMemberRepoStub(
		models.Member{ID: "m-1", Name: "Mia", Email: "m@x.com", PasswordHash: hashPassword(t, "member-pass"), Status: models.MemberStatusActive},
		models.Member{ID: "m-2", Name: "Idle", Email: "idle@x.com", PasswordHash: hashPassword(t, "member-pass"), Status: models.MemberStatusInactive},
	)
	svc := NewAuthService(members, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "institute-backoffice",
		AdminEmail:        "Root@Institute.org",
		AdminPasswordHash: hashPassword(t, "admin-pass"),
	})
	return svc, members
}

func TestAuthServiceAdminLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "root@institute.org", Password: "admin-pass"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "root@institute.org", claims.Email)
	assert.Equal(t, models.AdminAudience, claims.Audience())

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "root@institute.org", Password: "wrong"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceMemberLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	resp, err := svc.Login(ctx, models.LoginRequest{Email: "M@x.com", Password: "member-pass"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, resp.User.Role)
	assert.Equal(t, "m-1", resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "m-1", claims.UserID)
	assert.Equal(t, "m-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "idle@x.com", Password: "member-pass"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "idle@x.com", Password: "guess"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials), "inactive accounts do not leak with a wrong password")

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@x.com", Password: "member-pass"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "not-an-email", Password: "member-pass"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceRejectsForeignTokens(t *testing.T) {
	svc, _ := newAuthFixture(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{
		Role: models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "institute-backoffice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{
		Role: models.RoleMember,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "institute-backoffice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err = expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	unknownRole := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{
		Role:             "TEACHER",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "institute-backoffice"},
	})
	signed, err = unknownRole.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, members := newAuthFixture(t)
	ctx := context.Background()
	claims := &models.JWTClaims{UserID: "m-1", Role: models.RoleMember, Email: "m@x.com"}

	err := svc.ChangePassword(ctx, claims, models.ChangePasswordRequest{OldPassword: "wrong-pass", NewPassword: "fresh-password"})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	err = svc.ChangePassword(ctx, claims, models.ChangePasswordRequest{OldPassword: "member-pass", NewPassword: "member-pass"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	require.NoError(t, svc.ChangePassword(ctx, claims, models.ChangePasswordRequest{OldPassword: "member-pass", NewPassword: "fresh-password"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(members.members["m-1"].PasswordHash), []byte("fresh-password")))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "m@x.com", Password: "fresh-password"})
	assert.NoError(t, err)

	err = svc.ChangePassword(ctx, &models.JWTClaims{Role: models.RoleAdmin}, models.ChangePasswordRequest{OldPassword: "a", NewPassword: "b"})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
