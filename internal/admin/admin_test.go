package admin

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastHasher = cryptox.NewPasswordHasherWithIterations(1)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabaseDSN = config.MemoryDSN
	return cfg
}

func newRunner(t *testing.T, input string) (*Runner, *repomanager.InMemoryRepositoryManager, *bytes.Buffer) {
	t.Helper()
	stubTerminal(t, false, nil)
	mgr := repomanager.NewInMemoryRepositoryManager(nil)
	auth := services.NewAuthService(mgr, testConfig(), services.WithHasher(fastHasher))
	var out bytes.Buffer
	return NewRunner(mgr, auth, fastHasher, strings.NewReader(input), &out), mgr, &out
}

func TestCreateUser(t *testing.T) {
	r, mgr, out := newRunner(t, "Str0ngPassw\nStr0ngPassw\n")

	err := r.Run(context.Background(), []string{"create-user", "-role", "admin", "-email", "root@example.com", "root"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "created admin root")

	u, err := mgr.Store().Users().GetByLogin(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, u.IsActive)
	assert.True(t, fastHasher.Verify("Str0ngPassw", u.PasswordHash, u.Salt))
}

func TestCreateUser_PromptsForUsername(t *testing.T) {
	r, mgr, _ := newRunner(t, "carol\nStr0ngPassw\nStr0ngPassw\n")

	require.NoError(t, r.Run(context.Background(), []string{"create-user"}))

	u, err := mgr.Store().Users().GetByLogin(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, models.RoleEmployee, u.Role)
}

func TestCreateUser_Rejections(t *testing.T) {
	r, _, _ := newRunner(t, "Str0ngPassw\nOther1Passw\n")
	assert.ErrorIs(t, r.Run(context.Background(), []string{"create-user", "bob"}), ErrPasswordMismatch)

	r, _, out := newRunner(t, "short\nshort\n")
	err := r.Run(context.Background(), []string{"create-user", "bob"})
	var invalid *common.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, out.String(), "Password must be at least 8 characters long")

	r, _, _ = newRunner(t, "")
	assert.ErrorContains(t, r.Run(context.Background(), []string{"create-user", "-role", "root", "bob"}), "invalid role")

	r, _, _ = newRunner(t, "Str0ngPassw\nStr0ngPassw\nStr0ngPassw\nStr0ngPassw\n")
	require.NoError(t, r.Run(context.Background(), []string{"create-user", "bob"}))
	assert.ErrorContains(t, r.Run(context.Background(), []string{"create-user", "bob"}), "already exists")
}

func TestHashPassword(t *testing.T) {
	r, _, out := newRunner(t, "Str0ngPassw\nStr0ngPassw\n")

	require.NoError(t, r.Run(context.Background(), []string{"hash-password"}))

	var digest, salt []byte
	for _, line := range strings.Split(out.String(), "\n") {
		if v, ok := strings.CutPrefix(line, "hash: "); ok {
			digest, _ = hex.DecodeString(v)
		}
		if v, ok := strings.CutPrefix(line, "salt: "); ok {
			salt, _ = hex.DecodeString(v)
		}
	}
	require.Len(t, salt, cryptox.SaltLength)
	assert.True(t, fastHasher.Verify("Str0ngPassw", digest, salt))
}

func TestCleanupSessions(t *testing.T) {
	r, mgr, out := newRunner(t, "")
	ctx := context.Background()

	u, err := mgr.Store().Users().Create(ctx, &models.User{Username: "alice", Role: models.RoleEmployee, IsActive: true})
	require.NoError(t, err)
	now := time.Now()
	_, err = mgr.Store().Sessions().Create(ctx, &models.Session{
		Token: "t1", UserID: u.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, r.Run(ctx, []string{"cleanup-sessions"}))
	assert.Contains(t, out.String(), "1 expired session(s) retired")
}

func TestAuditTail(t *testing.T) {
	r, mgr, out := newRunner(t, "")
	ctx := context.Background()

	for i, typ := range []models.AuditEventType{models.EventLoginFailed, models.EventLoginSuccess} {
		require.NoError(t, mgr.Store().Audit().Append(ctx, &models.AuditEvent{
			CreatedAt: time.Date(2025, 3, 1, 9, i, 0, 0, time.UTC),
			EventType: typ,
			Username:  models.OptionalString("alice"),
			Details:   map[string]any{"n": i},
			Success:   typ == models.EventLoginSuccess,
		}))
	}

	require.NoError(t, r.Run(ctx, []string{"audit-tail", "1"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "EVENT")
	assert.Contains(t, lines[1], "login_success")
	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[1], `{"n":1}`)

	assert.Error(t, r.Run(ctx, []string{"audit-tail", "zero"}))
}

func TestRun_MigrateAndUnknown(t *testing.T) {
	r, _, out := newRunner(t, "")

	require.NoError(t, r.Run(context.Background(), []string{"migrate"}))
	assert.Contains(t, out.String(), "migrations applied")

	assert.ErrorIs(t, r.Run(context.Background(), []string{"frobnicate"}), ErrUnknownCommand)
	assert.ErrorIs(t, r.Run(context.Background(), nil), ErrUnknownCommand)
	assert.NoError(t, r.Run(context.Background(), []string{"help"}))
}

func TestMain_ExitCodes(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Main(context.Background(), testConfig(), []string{"cleanup-sessions"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "0 expired session(s) retired")

	code = Main(context.Background(), testConfig(), []string{"nope"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "unknown command")

	orig := openRepositoryManager
	t.Cleanup(func() { openRepositoryManager = orig })
	openRepositoryManager = func(context.Context, string) (repomanager.RepositoryManager, error) {
		return nil, errors.New("connection refused")
	}
	errOut.Reset()
	code = Main(context.Background(), testConfig(), []string{"migrate"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "connection refused")
}
