package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/darasa/core"
)

func TestGuard_Authorize(t *testing.T) {
	admin := newUser("Admin", RoleAdmin)
	student := newUser("Student", RoleStudent)
	blocked := newUser("Blocked", RoleAdmin)
	blocked.Blocked = true
	guard := NewGuard(newMemRepo(admin, student, blocked))

	tests := []struct {
		name    string
		claims  *Claims
		roles   []Role
		wantID  string
		wantErr error
	}{
		{name: "no claims", claims: nil, roles: []Role{RoleAdmin}, wantErr: core.ErrUnauthenticated},
		{name: "no email", claims: &Claims{Subject: admin.ID, Role: RoleAdmin}, roles: []Role{RoleAdmin}, wantErr: core.ErrUnauthenticated},
		{name: "unknown user", claims: &Claims{Email: "ghost@darasa.test", Role: RoleAdmin}, roles: []Role{RoleAdmin}, wantErr: core.ErrUnauthenticated},
		{name: "wrong role", claims: &Claims{Email: student.Email, Role: RoleStudent}, roles: []Role{RoleAdmin}, wantErr: core.ErrForbidden},
		{name: "stale admin claim", claims: &Claims{Email: student.Email, Role: RoleAdmin}, roles: []Role{RoleAdmin}, wantErr: core.ErrForbidden},
		{name: "blocked", claims: &Claims{Email: blocked.Email, Role: RoleAdmin}, roles: []Role{RoleAdmin}, wantErr: core.ErrForbidden},
		{name: "admin", claims: &Claims{Email: admin.Email, Role: RoleAdmin}, roles: []Role{RoleAdmin}, wantID: admin.ID},
		{name: "email case", claims: &Claims{Email: "ADMIN@darasa.test"}, roles: []Role{RoleAdmin}, wantID: admin.ID},
		{name: "any role", claims: &Claims{Email: student.Email}, wantID: student.ID},
		{name: "one of", claims: &Claims{Email: student.Email}, roles: []Role{RoleAdmin, RoleStudent}, wantID: student.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := guard.Authorize(context.Background(), tt.claims, tt.roles...)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantID, usr.ID)
		})
	}
}
