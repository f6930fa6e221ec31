package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alderburg/Teste-sub007/internal/cli/config"
	"github.com/alderburg/Teste-sub007/internal/session"
)

func clearGestorEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GESTOR_IDENTIFIER", "")
	t.Setenv("GESTOR_PASSWORD", "")
	t.Setenv("GESTOR_CODE", "")
}

func TestLoginCommand_Direct(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	err := runLogin(context.Background(), loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "✓ Login successful!")
	assert.Contains(t, out.String(), "User: maria (maria@example.com)")
	assert.Contains(t, out.String(), "→ /dashboard (replace)")

	token, err := env.tokens.LoadToken(env.gestor.URL)
	require.NoError(t, err)
	assert.Equal(t, "active-u1", token)

	u, err := env.mirror.LoadUser()
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "maria", u.Username)
}

func TestLoginCommand_ServerErrorShownVerbatim(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	err := runLogin(context.Background(), loginArgs{Identifier: "maria", Password: "wrong"}, env.options(&out)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Usuário ou senha inválidos")

	_, err = env.tokens.LoadToken(env.gestor.URL)
	assert.Error(t, err, "no token is stored after a failed login")
}

func TestLoginCommand_RequiresIdentifier(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	err := runLogin(context.Background(), loginArgs{Password: "x"}, env.options(&out)...)
	assert.ErrorContains(t, err, "username or email is required")
	assert.Empty(t, env.gestor.callLog())
}

func TestLoginCommand_PromptsForPassword(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	prompter := &scriptedPrompter{passwords: []string{maria.password}}
	err := runLogin(context.Background(), loginArgs{Identifier: "maria@example.com"}, env.options(&out, WithPrompter(prompter))...)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Login successful!")
}

func TestLoginCommand_RedirectTarget(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	err := runLogin(context.Background(), loginArgs{Identifier: "maria", Password: maria.password, Redirect: "/produtos"}, env.options(&out)...)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "→ /produtos (replace)")
}

func TestLoginCommand_TwoFactorWithCodeFlag(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, joao)
	var out strings.Builder

	err := runLogin(context.Background(), loginArgs{Identifier: "joao", Password: joao.password, Code: validCode}, env.options(&out)...)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Two-factor authentication is enabled")
	assert.Contains(t, out.String(), "✓ Login successful!")
	assert.Equal(t, []string{"POST /api/login", "POST /api/verify-2fa"}, env.gestor.callLog())

	token, err := env.tokens.LoadToken(env.gestor.URL)
	require.NoError(t, err)
	assert.Equal(t, "active-u2", token, "only the verified session token is persisted")

	_, pending := env.mirror.PendingTwoFactor()
	assert.False(t, pending)
}

func TestLoginCommand_TwoFactorRetry(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, joao)
	var out strings.Builder

	prompter := &scriptedPrompter{codes: []string{"000000", "12ab", validCode}}
	err := runLogin(context.Background(), loginArgs{Identifier: "joao", Password: joao.password}, env.options(&out, WithPrompter(prompter))...)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "✗ Código inválido")
	assert.Contains(t, out.String(), "✗ invalid verification code")
	assert.Contains(t, out.String(), "✓ Login successful!")
}

func TestLoginCommand_TwoFactorCancelled(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, joao)
	var out strings.Builder

	err := runLogin(context.Background(), loginArgs{Identifier: "joao", Password: joao.password}, env.options(&out)...)
	assert.ErrorContains(t, err, "verification cancelled")

	_, pending := env.mirror.PendingTwoFactor()
	assert.False(t, pending, "abandoned login discards the temporary user")
	_, err = env.tokens.LoadToken(env.gestor.URL)
	assert.Error(t, err)
}

func TestLoginCommand_AttemptLimit(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, joao)
	var out strings.Builder

	prompter := &scriptedPrompter{codes: []string{"000000", "000001", "000002"}}
	err := runLogin(context.Background(), loginArgs{Identifier: "joao", Password: joao.password},
		env.options(&out, WithPrompter(prompter), WithConfig(&config.Config{MaxCodeAttempts: 2}))...)
	assert.ErrorIs(t, err, session.ErrTooManyAttempts)
}

func TestLogoutCommand(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...))

	out.Reset()
	require.NoError(t, runLogout(ctx, "", env.options(&out)...))
	assert.Contains(t, out.String(), "→ /acessar?logout=true (replace)")
	assert.Contains(t, out.String(), "✓ Logged out of test")

	_, err := env.tokens.LoadToken(env.gestor.URL)
	assert.Error(t, err)
	u, err := env.mirror.LoadUser()
	require.NoError(t, err)
	assert.Nil(t, u)

	// The signed-out sign-in page renders without bouncing.
	out.Reset()
	require.NoError(t, runOpen(ctx, openArgs{Route: "/acessar"}, env.options(&out)...))
	assert.Equal(t, "✓ /acessar\n", out.String())
}

func TestLogoutCommand_ServerFailureStillClearsLocalState(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...))
	env.gestor.setDown(true)

	require.NoError(t, runLogout(ctx, "", env.options(&out)...))
	_, err := env.tokens.LoadToken(env.gestor.URL)
	assert.Error(t, err)
}

func TestWhoamiCommand(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	err := runWhoami(ctx, "", env.options(&out)...)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...))

	out.Reset()
	require.NoError(t, runWhoami(ctx, "", env.options(&out)...))
	assert.Contains(t, out.String(), "maria@example.com")
	assert.Contains(t, out.String(), "admin")
	assert.Contains(t, out.String(), "active")
}

func TestWhoamiCommand_ServiceUnavailable(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...))
	env.gestor.setDown(true)

	err := runWhoami(ctx, "", env.options(&out)...)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "Database unavailable")
}

func TestOpenCommand_ProtectedRouteWithoutSession(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	// A stale mirror does not grant access.
	require.NoError(t, env.mirror.SaveUser(maria.user))

	require.NoError(t, runOpen(context.Background(), openArgs{Route: "/produtos"}, env.options(&out)...))
	assert.Contains(t, out.String(), "→ /acessar?redirect=%2Fprodutos (replace)")
	assert.Contains(t, out.String(), "✓ /acessar?redirect=%2Fprodutos")

	u, err := env.mirror.LoadUser()
	require.NoError(t, err)
	assert.Nil(t, u, "stale mirror is cleared")
}

func TestOpenCommand_ProtectedRouteWithSession(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...))

	out.Reset()
	require.NoError(t, runOpen(ctx, openArgs{Route: "/produtos"}, env.options(&out)...))
	assert.Equal(t, "✓ /produtos\n  Signed in as maria (maria@example.com)\n", out.String())
}

func TestOpenCommand_SignInPageWhileAuthenticated(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...))

	out.Reset()
	require.NoError(t, runOpen(ctx, openArgs{Route: "/cadastre-se"}, env.options(&out)...))
	assert.Contains(t, out.String(), "→ /dashboard (hard)")
	assert.Contains(t, out.String(), "✓ /dashboard")
}

func TestOpenCommand_DefaultsToDashboard(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	require.NoError(t, runOpen(context.Background(), openArgs{}, env.options(&out)...))
	assert.Contains(t, out.String(), "→ /acessar?redirect=%2Fdashboard (replace)")
}

func TestOpenCommand_RejectsNonLocalRoutes(t *testing.T) {
	env := newTestEnv(t, maria)
	var out strings.Builder

	for _, route := range []string{"https://evil.example.com", "//evil.example.com", "produtos"} {
		err := runOpen(context.Background(), openArgs{Route: route}, env.options(&out)...)
		assert.Error(t, err, route)
	}
	assert.Empty(t, env.gestor.callLog())
}

func TestSignupCommand(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	prompter := &scriptedPrompter{passwords: []string{"uma-senha-longa", "uma-senha-longa"}}
	err := runSignup(ctx, signupArgs{Username: "ana", Email: "ana@example.com"}, env.options(&out, WithPrompter(prompter))...)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Account created for ana (ana@example.com)")

	out.Reset()
	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "ana", Password: "uma-senha-longa"}, env.options(&out)...))
}

func TestSignupCommand_Validation(t *testing.T) {
	clearGestorEnv(t)
	tests := []struct {
		name    string
		args    signupArgs
		wantErr string
	}{
		{name: "bad email", args: signupArgs{Username: "ana", Email: "ana", Password: "uma-senha-longa"}, wantErr: "invalid signup form"},
		{name: "short password", args: signupArgs{Username: "ana", Email: "ana@example.com", Password: "curta"}, wantErr: "invalid signup form"},
		{name: "short username", args: signupArgs{Username: "an", Email: "ana@example.com", Password: "uma-senha-longa"}, wantErr: "invalid signup form"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			var out strings.Builder
			err := runSignup(context.Background(), tt.args, env.options(&out)...)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Empty(t, env.gestor.callLog())
		})
	}
}

func TestSignupCommand_PasswordMismatch(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t)
	var out strings.Builder

	prompter := &scriptedPrompter{passwords: []string{"uma-senha-longa", "outra-senha-longa"}}
	err := runSignup(context.Background(), signupArgs{Username: "ana", Email: "ana@example.com"}, env.options(&out, WithPrompter(prompter))...)
	assert.ErrorContains(t, err, "passwords do not match")
}

func TestSignupCommand_ServerConflict(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder

	err := runSignup(context.Background(), signupArgs{Username: "maria", Email: "m@example.com", Password: "uma-senha-longa"}, env.options(&out)...)
	assert.ErrorContains(t, err, "Nome de usuário já existe")
}

func TestTwoFactorCommands(t *testing.T) {
	clearGestorEnv(t)
	env := newTestEnv(t, maria)
	var out strings.Builder
	ctx := context.Background()

	err := runTwoFactorSetup(ctx, "", "", env.options(&out)...)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password}, env.options(&out)...))

	out.Reset()
	qrFile := filepath.Join(t.TempDir(), "qr.png")
	require.NoError(t, runTwoFactorSetup(ctx, "", qrFile, env.options(&out)...))
	assert.Contains(t, out.String(), "JBSWY3DPEHPK3PXP")
	png, err := os.ReadFile(qrFile)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), png)

	err = runTwoFactorEnable(ctx, "", "12ab", env.options(&out)...)
	assert.ErrorContains(t, err, "invalid verification code")

	err = runTwoFactorEnable(ctx, "", "654321", env.options(&out)...)
	assert.ErrorContains(t, err, "Código inválido")

	out.Reset()
	require.NoError(t, runTwoFactorEnable(ctx, "", validCode, env.options(&out)...))
	assert.Contains(t, out.String(), "✓ Two-factor authentication enabled for maria")

	// The next sign-in asks for the second factor.
	out.Reset()
	require.NoError(t, runLogin(ctx, loginArgs{Identifier: "maria", Password: maria.password, Code: validCode}, env.options(&out)...))
	assert.Contains(t, out.String(), "Two-factor authentication is enabled")
}

func TestDecodePNGDataURL(t *testing.T) {
	_, err := decodePNGDataURL("data:image/gif;base64,R0lGOD")
	assert.Error(t, err)
	_, err = decodePNGDataURL(pngDataURLPrefix + "!!!")
	assert.Error(t, err)
}
