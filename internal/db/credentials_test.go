package db

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential_Complete(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{"both", Credential{ID: 1, LoginName: "user", Password: "pw"}, true},
		{"no login", Credential{ID: 1, LoginName: "", Password: "pw"}, false},
		{"no password", Credential{ID: 1, LoginName: "user"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cred.Complete())
		})
	}
}

func TestCredential_Normalized(t *testing.T) {
	c := Credential{LoginName: "  user \n", Password: " pw "}.normalized()
	assert.Equal(t, "user", c.LoginName)
	assert.Equal(t, " pw ", c.Password, "passwords are used verbatim")
}

func TestCredential_PasswordNotSerialized(t *testing.T) {
	out, err := json.Marshal(Credential{ID: 7, LoginName: "user", Password: "secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	require.NotNil(t, nullIfEmpty("x"))
	assert.Equal(t, "x", *nullIfEmpty("x"))
}
