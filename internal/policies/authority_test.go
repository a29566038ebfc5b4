package policies

import (
	"testing"

	"carbon-registry/internal/domain"

	"github.com/stretchr/testify/assert"
)

func key(b byte) domain.Pubkey {
	var pk domain.Pubkey
	pk[0] = b
	return pk
}

func TestAuthorize_Authority(t *testing.T) {
	state := &domain.ProgramState{Authority: key(1)}
	assert.NoError(t, Authorize(RoleAuthority, key(1), Subject{Program: state}))
	assert.Equal(t, domain.ErrUnauthorized, Authorize(RoleAuthority, key(2), Subject{Program: state}))
}

func TestAuthorize_MissingRecordFailsClosed(t *testing.T) {
	assert.ErrorIs(t, Authorize(RoleAuthority, domain.Pubkey{}, Subject{}), domain.ErrUnauthorized)
	assert.ErrorIs(t, Authorize(RoleProjectOwner, key(1), Subject{}), domain.ErrUnauthorized)
}

func TestAuthorize_ZeroAuthorityNeverMatches(t *testing.T) {
	state := &domain.ProgramState{}
	assert.ErrorIs(t, Authorize(RoleAuthority, domain.Pubkey{}, Subject{Program: state}), domain.ErrUnauthorized)
}

func TestAuthorize_AuthorityOrOwner(t *testing.T) {
	s := Subject{
		Program: &domain.ProgramState{Authority: key(1)},
		Project: &domain.Project{Owner: key(2)},
	}
	assert.NoError(t, Authorize(RoleAuthorityOrOwner, key(1), s))
	assert.NoError(t, Authorize(RoleAuthorityOrOwner, key(2), s))
	assert.ErrorIs(t, Authorize(RoleAuthorityOrOwner, key(3), s), domain.ErrUnauthorized)
	assert.ErrorIs(t, Authorize(RoleProjectOwner, key(1), s), domain.ErrUnauthorized)
}

func TestHasSigner(t *testing.T) {
	signers := []domain.Pubkey{key(1), key(2)}
	assert.True(t, HasSigner(key(2), signers))
	assert.False(t, HasSigner(key(3), signers))
	assert.False(t, HasSigner(key(1), nil))
}
