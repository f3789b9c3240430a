package tunnelflight

import (
	"context"
	"net/http"
	"testing"
	"time"
	"tunnelflight/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func registryOptions(portal *fakePortal, username string) ClientOptions {
	return ClientOptions{
		BaseUrl:           portal.server.URL,
		Credentials:       NewCredentials(username, "secret"),
		SettleDelay:       time.Millisecond,
		RequestsPerSecond: -1,
		Telemetry:         telemetry.NewRecorder(),
	}
}

func TestRegistry(t *testing.T) {
	portal := newFakePortal(t)
	registry := NewRegistry()
	t.Cleanup(registry.Close)

	alice, err := registry.Add("alice", registryOptions(portal, "alice"))
	require.NoError(t, err)
	_, err = registry.Add("bob", registryOptions(portal, "Bob"))
	require.NoError(t, err)

	_, err = registry.Add("alice", registryOptions(portal, "alice"))
	require.ErrorContains(t, err, "already registered")

	_, err = registry.Add("broken", ClientOptions{
		Credentials: NewCredentials("carol", "secret"),
		AuthMode:    "kerberos",
	})
	require.Error(t, err)

	require.Equal(t, []string{"alice", "bob"}, registry.IDs())

	client, ok := registry.Get("alice")
	require.True(t, ok)
	require.Same(t, alice, client)

	bob, ok := registry.Get("bob")
	require.True(t, ok)
	require.Equal(t, "bob", bob.Username())

	_, ok = registry.Get("carol")
	require.False(t, ok)
}

func TestRegistryRemoveClosesClient(t *testing.T) {
	portal := newFakePortal(t)
	registry := NewRegistry()

	client, err := registry.Add("alice", registryOptions(portal, "alice"))
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background()))
	require.True(t, client.IsAuthenticated())

	registry.Remove("alice")
	require.False(t, client.IsAuthenticated())
	_, ok := registry.Get("alice")
	require.False(t, ok)

	// removing twice is fine, and the id can be reused
	registry.Remove("alice")
	_, err = registry.Add("alice", registryOptions(portal, "alice"))
	require.NoError(t, err)

	registry.Close()
	require.Empty(t, registry.IDs())
}

func TestRegistryClientsAreIsolated(t *testing.T) {
	portal := newFakePortal(t)
	portal.handle("GET /account/logbook/tunnels/", jsonResponse(http.StatusOK, `[{"entry_id": 1, "title": "One"}]`))
	registry := NewRegistry()
	t.Cleanup(registry.Close)

	alice, err := registry.Add("alice", registryOptions(portal, "alice"))
	require.NoError(t, err)
	bob, err := registry.Add("bob", registryOptions(portal, "bob"))
	require.NoError(t, err)

	require.NoError(t, alice.Login(context.Background()))
	require.False(t, bob.IsAuthenticated())

	_, err = alice.Tunnels(context.Background())
	require.NoError(t, err)
	_, err = bob.Tunnels(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, portal.count("GET /account/logbook/tunnels/"))
}
