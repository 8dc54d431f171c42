package commands

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlabot/charla/pkg/registration"
	"github.com/charlabot/charla/pkg/storage"
	"github.com/charlabot/charla/pkg/users"
)

type fakeTransport struct {
	connected bool
	identity  string
	chats     []ChatSummary
	history   map[string][]HistoryEntry
}

func (f *fakeTransport) Status() TransportStatus {
	return TransportStatus{Connected: f.connected, Identity: f.identity}
}

func (f *fakeTransport) Chats(context.Context) ([]ChatSummary, error) {
	return f.chats, nil
}

func (f *fakeTransport) History(chatID string, limit int) []HistoryEntry {
	entries := f.history[chatID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

type fakeStats struct{ n int }

func (f fakeStats) ActiveCount() int { return f.n }

func newTestEnv(t *testing.T) *Env {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "charla.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := users.NewStore(db)
	require.NoError(t, err)

	reg, err := NewRegistry(BuiltinDefinitions())
	require.NoError(t, err)

	return &Env{
		Users:     store,
		Contexts:  fakeStats{n: 2},
		Registry:  reg,
		StartedAt: time.Now().Add(-time.Hour),
		Version:   "test",
	}
}

func ensureCaller(t *testing.T, env *Env, identity string, level users.Level) *users.User {
	t.Helper()

	u, err := env.Users.Ensure(context.Background(), identity)
	require.NoError(t, err)
	if u.Level != level {
		u, err = env.Users.Update(context.Background(), identity, users.Update{Level: &level})
		require.NoError(t, err)
	}
	return u
}

func TestBuiltinDefinitions_CatalogComplete(t *testing.T) {
	reg, err := NewRegistry(BuiltinDefinitions())
	require.NoError(t, err, "builtin catalog must not collide")

	for _, want := range []string{"help", "whoami", "register", "status", "chats", "history", "promote", "ban", "unban"} {
		if !reg.Has(want) {
			t.Fatalf("missing command %q", want)
		}
	}

	// Spanish aliases resolve to the same definitions.
	for alias, canonical := range map[string]string{
		"ayuda":       "help",
		"quiensoy":    "whoami",
		"registro":    "register",
		"estado":      "status",
		"historial":   "history",
		"bloquear":    "ban",
		"desbloquear": "unban",
		"nivel":       "promote",
		"registrarme": "register",
	} {
		def, ok := reg.Resolve(alias)
		if !ok || def.Name != canonical {
			t.Fatalf("alias %q -> %v, want %s", alias, def, canonical)
		}
	}
}

func TestHandleHelp_FiltersByLevel(t *testing.T) {
	env := newTestEnv(t)
	guest := ensureCaller(t, env, "521555000001", users.LevelGuest)

	resp, err := handleHelp(context.Background(), Request{Env: env, Caller: guest})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "/help")
	assert.Contains(t, resp.Reply, "/register")
	assert.NotContains(t, resp.Reply, "/promote")

	owner := ensureCaller(t, env, "521555000009", users.LevelOwner)
	resp, err = handleHelp(context.Background(), Request{Env: env, Caller: owner})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "/promote")
	assert.Contains(t, resp.Reply, "/ban")
}

func TestHandleWhoami(t *testing.T) {
	env := newTestEnv(t)
	caller := ensureCaller(t, env, "521555000001", users.LevelUser)

	resp, err := handleWhoami(context.Background(), Request{Env: env, Caller: caller})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "521555000001")
	assert.Contains(t, resp.Reply, "user")
	assert.Contains(t, resp.Reply, "sin registrar")
}

func TestHandleRegister_WithName(t *testing.T) {
	env := newTestEnv(t)
	caller := ensureCaller(t, env, "521555000001", users.LevelGuest)
	ctx := context.Background()

	resp, err := handleRegister(ctx, Request{Env: env, Caller: caller, Args: []string{"Ana", "María"}})
	require.NoError(t, err)
	assert.True(t, resp.ClearContext)
	assert.Contains(t, resp.Reply, "Ana María")

	got, err := env.Users.FindByIdentity(ctx, "521555000001")
	require.NoError(t, err)
	assert.Equal(t, "Ana María", got.DisplayName)
	assert.True(t, got.Registered)
	assert.Equal(t, users.LevelUser, got.Level)
}

func TestHandleRegister_InvalidNameArg(t *testing.T) {
	env := newTestEnv(t)
	caller := ensureCaller(t, env, "521555000001", users.LevelGuest)
	ctx := context.Background()

	resp, err := handleRegister(ctx, Request{Env: env, Caller: caller, Args: []string{"12345"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "teléfono")
	assert.Nil(t, resp.OpenContext)

	got, err := env.Users.FindByIdentity(ctx, "521555000001")
	require.NoError(t, err)
	assert.False(t, got.Registered)
}

func TestHandleRegister_OpensExchange(t *testing.T) {
	env := newTestEnv(t)
	caller := ensureCaller(t, env, "521555000001", users.LevelGuest)

	resp, err := handleRegister(context.Background(), Request{Env: env, Caller: caller})
	require.NoError(t, err)
	require.NotNil(t, resp.OpenContext)
	assert.Equal(t, registration.ContextType, resp.OpenContext.Type)
	assert.Equal(t, registration.StepAwaitingName, resp.OpenContext.Step)
	assert.NotEmpty(t, resp.Reply)
}

func TestHandleRegister_AlreadyRegistered(t *testing.T) {
	env := newTestEnv(t)
	caller := ensureCaller(t, env, "521555000001", users.LevelGuest)
	ctx := context.Background()

	_, err := registration.Complete(ctx, env.Users, caller, "Ana")
	require.NoError(t, err)
	caller, err = env.Users.FindByIdentity(ctx, "521555000001")
	require.NoError(t, err)

	resp, err := handleRegister(ctx, Request{Env: env, Caller: caller})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "Ya estás registrado")
	assert.Nil(t, resp.OpenContext)
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t)
	env.Transport = &fakeTransport{connected: true, identity: "521555000000"}
	caller := ensureCaller(t, env, "mod1", users.LevelModerator)

	resp, err := handleStatus(context.Background(), Request{Env: env, Caller: caller})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "conectado")
	assert.Contains(t, resp.Reply, "Contextos activos: 2")
	assert.Contains(t, resp.Reply, "Usuarios conocidos: 1")

	env.Transport = nil
	resp, err = handleStatus(context.Background(), Request{Env: env, Caller: caller})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "deshabilitado")
}

func TestHandleChatsAndHistory(t *testing.T) {
	env := newTestEnv(t)
	env.Transport = &fakeTransport{
		connected: true,
		chats:     []ChatSummary{{ID: "c1", Name: "Familia"}},
		history: map[string][]HistoryEntry{
			"c1": {
				{Sender: "521555000001", Text: "hola", At: time.Now()},
				{Sender: "521555000002", Text: "qué tal", At: time.Now()},
			},
		},
	}
	admin := ensureCaller(t, env, "admin1", users.LevelAdmin)
	ctx := context.Background()

	resp, err := handleChats(ctx, Request{Env: env, Caller: admin})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "Familia")

	resp, err = handleHistory(ctx, Request{Env: env, Caller: admin, Args: []string{"c1", "1"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "qué tal")
	assert.Equal(t, 1, strings.Count(resp.Reply, "\n")+1)

	resp, err = handleHistory(ctx, Request{Env: env, Caller: admin, Args: []string{"c2"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "No tengo mensajes")

	resp, err = handleHistory(ctx, Request{Env: env, Caller: admin})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "Uso:")
}

func TestHandlePromote(t *testing.T) {
	env := newTestEnv(t)
	env.Owner = "owner1"
	owner := ensureCaller(t, env, "owner1", users.LevelOwner)
	ensureCaller(t, env, "target1", users.LevelUser)
	ctx := context.Background()

	resp, err := handlePromote(ctx, Request{Env: env, Caller: owner, Args: []string{"target1", "moderator"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "moderator")

	got, err := env.Users.FindByIdentity(ctx, "target1")
	require.NoError(t, err)
	assert.Equal(t, users.LevelModerator, got.Level)

	resp, err = handlePromote(ctx, Request{Env: env, Caller: owner, Args: []string{"missing", "admin"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "No conozco")

	resp, err = handlePromote(ctx, Request{Env: env, Caller: owner, Args: []string{"target1", "jefe"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "Nivel desconocido")

	resp, err = handlePromote(ctx, Request{Env: env, Caller: owner, Args: []string{"owner1", "guest"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "dueño")
}

func TestHandleBanAndUnban(t *testing.T) {
	env := newTestEnv(t)
	env.Owner = "owner1"
	owner := ensureCaller(t, env, "owner1", users.LevelOwner)
	ctx := context.Background()

	target := ensureCaller(t, env, "target1", users.LevelGuest)
	_, err := registration.Complete(ctx, env.Users, target, "Ana")
	require.NoError(t, err)

	resp, err := handleBan(ctx, Request{Env: env, Caller: owner, Args: []string{"target1"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "bloqueado")

	got, err := env.Users.FindByIdentity(ctx, "target1")
	require.NoError(t, err)
	assert.Equal(t, users.LevelBlocked, got.Level)

	// Banning keeps the record; unban restores a registered user to
	// user level.
	resp, err = handleUnban(ctx, Request{Env: env, Caller: owner, Args: []string{"target1"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "desbloqueado")

	got, err = env.Users.FindByIdentity(ctx, "target1")
	require.NoError(t, err)
	assert.Equal(t, users.LevelUser, got.Level)

	resp, err = handleUnban(ctx, Request{Env: env, Caller: owner, Args: []string{"target1"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "no está bloqueado")

	resp, err = handleBan(ctx, Request{Env: env, Caller: owner, Args: []string{"owner1"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "dueño")
}
