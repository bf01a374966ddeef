package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = config.MemoryDSN
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.EndpointAddrGRPC = "127.0.0.1:0"
	return c
}

func TestNewApp_MemoryRunsAndStops(t *testing.T) {
	app, err := newApp(context.Background(), memoryConfig(), logging.Nop())
	require.NoError(t, err)
	assert.Nil(t, app.exporter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop after context cancel")
	}
}

func TestNewApp_ThreatRulesFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte(`user_agents = ["evilbot"]`), 0o600))
	c := memoryConfig()
	c.ThreatRulesFile = good
	_, err := newApp(context.Background(), c, logging.Nop())
	require.NoError(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[[family]]\nname = \"x\"\npatterns = [\"(\"]\nreason = \"X\"\n"), 0o600))
	c.ThreatRulesFile = bad
	_, err = newApp(context.Background(), c, logging.Nop())
	assert.Error(t, err)

	c.ThreatRulesFile = filepath.Join(dir, "missing.toml")
	_, err = newApp(context.Background(), c, logging.Nop())
	assert.Error(t, err)
}

func TestNewApp_TrustedProxies(t *testing.T) {
	c := memoryConfig()
	c.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.5"}
	app, err := newApp(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	assert.Len(t, app.trustedProxies, 2)

	c.TrustedProxies = []string{"proxy.internal"}
	_, err = newApp(context.Background(), c, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trusted proxy")
}

func TestNewApp_PostgresOpenError(t *testing.T) {
	orig := openRepositoryManager
	t.Cleanup(func() { openRepositoryManager = orig })

	openRepositoryManager = func(context.Context, string) (repomanager.RepositoryManager, error) {
		return nil, errors.New("connection refused")
	}

	c := memoryConfig()
	c.DatabaseDSN = "postgres://localhost/authcore"
	_, err := newApp(context.Background(), c, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db init error")
}

func TestRunSessionSweeper_RetiresExpiredOnStart(t *testing.T) {
	app, err := newApp(context.Background(), memoryConfig(), logging.Nop())
	require.NoError(t, err)
	store := app.repomanager.(*repomanager.InMemoryRepositoryManager).Store()

	u, err := store.Users().Create(context.Background(), &models.User{
		Username: "alice", Email: "alice@example.com", Role: models.RoleEmployee, IsActive: true,
	})
	require.NoError(t, err)

	now := time.Now()
	_, err = store.Sessions().Create(context.Background(), &models.Session{
		Token: "expired-token", UserID: u.ID,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour), IsActive: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	app.runSessionSweeper(ctx)

	sess, ok := store.Sessions().Get("expired-token")
	require.True(t, ok)
	assert.False(t, sess.IsActive)
}
