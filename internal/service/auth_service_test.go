package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kenseikai/dojo-api/internal/models"
	"github.com/kenseikai/dojo-api/pkg/config"
)

type mockAuthUserRepo struct {
	users   map[string]*models.User
	tokens  map[string]*models.RefreshToken
	revoked []string
}

func newMockAuthUserRepo() *mockAuthUserRepo {
	return &mockAuthUserRepo{
		users:  map[string]*models.User{},
		tokens: map[string]*models.RefreshToken{},
	}
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockAuthUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	m.revoked = append(m.revoked, id)
	return nil
}

func (m *mockAuthUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func authFixture(t *testing.T) (*AuthService, *mockAuthUserRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("osu-osu-osu"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := newMockAuthUserRepo()
	repo.users["u1"] = &models.User{
		ID:           "u1",
		Email:        "sensei@kenseikai.example",
		FullName:     "Kenji Sato",
		PasswordHash: string(hash),
		Role:         models.RoleInstructor,
		Active:       true,
	}
	svc := NewAuthService(repo, nil, nil, config.JWTConfig{
		Secret:            "unit-test-secret",
		Expiration:        15 * time.Minute,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "dojo-api",
	})
	return svc, repo
}

func TestLoginIssuesVerifiableAccessToken(t *testing.T) {
	svc, _ := authFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "sensei@kenseikai.example",
		Password: "osu-osu-osu",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleInstructor, claims.Role)
	assert.Equal(t, "sensei@kenseikai.example", claims.Email)
	assert.Equal(t, "dojo-api", claims.Issuer)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "sensei@kenseikai.example",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, repo := authFixture(t)
	repo.users["u1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "sensei@kenseikai.example",
		Password: "osu-osu-osu",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, repo := authFixture(t)

	first, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "sensei@kenseikai.example",
		Password: "osu-osu-osu",
	})
	require.NoError(t, err)

	second, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.True(t, repo.tokens[first.RefreshToken].Revoked)

	claims, err := svc.ValidateToken(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	// The used refresh token must not work a second time.
	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: first.RefreshToken})
	require.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, _ := authFixture(t)
	other := NewAuthService(newMockAuthUserRepo(), nil, nil, config.JWTConfig{
		Secret:     "a-different-secret",
		Expiration: time.Minute,
	})

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "sensei@kenseikai.example",
		Password: "osu-osu-osu",
	})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
