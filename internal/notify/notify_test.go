package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

func TestRender(t *testing.T) {
	t.Parallel()

	subject, body, err := Render(core.CredentialEmail{
		To:         "asha@example.com",
		Name:       "Asha Rao",
		Role:       core.RoleParent,
		Credential: "Parent@qwerty12",
		LoginURL:   "https://school.example.com/login",
	})
	require.NoError(t, err)

	assert.Equal(t, "Your account details", subject)
	assert.Contains(t, body, "Hello Asha Rao,")
	assert.Contains(t, body, "as a Parent.")
	assert.Contains(t, body, "Password: Parent@qwerty12")
	assert.Contains(t, body, "Sign in at https://school.example.com/login")
}

func TestRender_FallsBackToEmail(t *testing.T) {
	t.Parallel()

	_, body, err := Render(core.CredentialEmail{To: "x@example.com", Role: "GUEST"})
	require.NoError(t, err)
	assert.Contains(t, body, "Hello x@example.com,")
	assert.Contains(t, body, "as a User.")
}

func TestSMTPSender_SendCredentialEmail(t *testing.T) {
	t.Parallel()

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewSMTPSender(SMTPConfig{Host: "mail.example.com", Port: 587, Username: "u", Password: "p", From: "noreply@example.com"})
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := s.SendCredentialEmail(context.Background(), core.CredentialEmail{To: "asha@example.com", Role: core.RoleStudent, Credential: "c"})
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"asha@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(string(gotMsg), "From: noreply@example.com\r\nTo: asha@example.com\r\n"))
}

func TestSMTPSender_WrapsFailure(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender(SMTPConfig{Host: "mail.example.com", Port: 25})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("421 service not available")
	}

	err := s.SendCredentialEmail(context.Background(), core.CredentialEmail{To: "asha@example.com"})
	require.ErrorContains(t, err, "send mail to asha@example.com: 421")
}
