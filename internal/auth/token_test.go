package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	team := "team-1"
	staff := &domain.StaffMember{ID: "staff-1", Role: domain.StaffRoleTechnician, TeamID: &team}

	token, exp, err := tm.GenerateToken(staff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, domain.SubjectTypeStaff, claims.SubjectType)
	assert.Equal(t, domain.StaffRoleTechnician, *claims.Role)
	assert.Equal(t, "team-1", *claims.TeamID)
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	staff := &domain.StaffMember{ID: "staff-1", Role: domain.StaffRoleAdmin}

	other := NewTokenManager("other-secret", 30)
	token, _, err := other.GenerateToken(staff)
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 30).ParseToken(token)
	assert.Error(t, err)

	past := NewTokenManager("secret", 1)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = past.GenerateToken(staff)
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 1).ParseToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3nha-forte", 4)
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, "s3nha-forte"))
	assert.Error(t, ComparePassword(hash, "errada"))
}
