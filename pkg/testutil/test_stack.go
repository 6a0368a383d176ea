package testutil

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/clients/allocationClient"
	"github.com/defispring/allocation-merkle-go/pkg/ingest"
	"github.com/defispring/allocation-merkle-go/pkg/logger"
	"github.com/defispring/allocation-merkle-go/pkg/persistence"
	"github.com/defispring/allocation-merkle-go/pkg/server"
	"github.com/defispring/allocation-merkle-go/pkg/snapshot"
)

// AdminSecret is the HS256 secret every TestStack server accepts.
var AdminSecret = []byte("test-admin-secret-0123456789abcdef")

// StackOptions configures a TestStack. The zero value gives a stack with no
// ledger.
type StackOptions struct {
	Ledger          persistence.IRootLedger
	RejectRootDrift bool
}

// TestStack wires a local raw input directory, a repository, an HTTP server
// and a client the way allocation-server does.
type TestStack struct {
	Dir    string
	Repo   *snapshot.Repository
	Server *httptest.Server
	Client *allocationClient.Client
	logger *zap.Logger
}

// NewTestStack creates a stack reading from a fresh temp dir. Archives
// written to Dir are picked up by the next refresh.
func NewTestStack(t *testing.T, opts StackOptions) *TestStack {
	t.Helper()

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	dir := t.TempDir()
	repo, err := snapshot.NewRepository(&snapshot.RepositoryConfig{
		Loader:          ingest.NewLocalSource(dir, l),
		Ledger:          opts.Ledger,
		RejectRootDrift: opts.RejectRootDrift,
		Logger:          l,
	})
	require.NoError(t, err)

	srv, err := server.NewServer(&server.Config{
		Repository:     repo,
		AdminJWTSecret: AdminSecret,
		Logger:         l,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.GetHandler())

	token, err := server.NewAdminToken(AdminSecret, "test-stack", time.Hour)
	require.NoError(t, err)
	client, err := allocationClient.NewClient(&allocationClient.ClientConfig{
		BaseURL:    ts.URL,
		Logger:     l,
		AdminToken: token,
	})
	require.NoError(t, err)

	stack := &TestStack{
		Dir:    dir,
		Repo:   repo,
		Server: ts,
		Client: client,
		logger: l,
	}
	t.Cleanup(stack.Close)

	l.Sugar().Debugw("Started test stack", "dir", dir, "url", ts.URL)
	return stack
}

// Refresh reloads the stack's raw input directory.
func (ts *TestStack) Refresh(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := ts.Repo.Refresh(context.Background())
	require.NoError(t, err)
	return snap
}

// Close shuts down the server and the repository.
func (ts *TestStack) Close() {
	ts.Server.Close()
	_ = ts.Repo.Close()
	ts.logger.Sugar().Debugw("Closed test stack", "dir", ts.Dir)
}
