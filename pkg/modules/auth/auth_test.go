package auth

import (
	"context"
	"testing"
	"time"

	"github.com/morezero/sdk-bridge/pkg/bridge"
	"github.com/morezero/sdk-bridge/pkg/native/simulation"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

const authTestPrefix = "auth:auth_test"

func newClient(t *testing.T) (*Client, *bridge.Bridge, *simulation.Backend) {
	t.Helper()
	sim := simulation.New(nil)
	b := bridge.New(sim, nil)
	t.Cleanup(func() { b.Close(context.Background()) })
	return New(b), b, sim
}

// await drains b until done is closed.
func await(t *testing.T, b *bridge.Bridge, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		b.Drain()
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatalf("%s - timed out waiting for reply", authTestPrefix)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestParseLoginType(t *testing.T) {
	tests := []struct {
		in   string
		want LoginType
	}{
		{"ACCOUNT", LoginAccount},
		{"select", LoginSelect},
		{"Auto", LoginAuto},
		{"GUEST", LoginGuest},
		{"", LoginGuest},
		{"FACEBOOK", LoginGuest},
	}
	for _, tt := range tests {
		if got := ParseLoginType(tt.in); got != tt.want {
			t.Errorf("%s - ParseLoginType(%q) = %s, want %s", authTestPrefix, tt.in, got, tt.want)
		}
	}
}

func TestInitializeAndLogin(t *testing.T) {
	c, b, sim := newClient(t)

	done := make(chan struct{})
	var init InitResult
	if err := c.Initialize(context.Background(), func(r InitResult) { init = r; close(done) }); err != nil {
		t.Fatalf("%s - Initialize failed: %v", authTestPrefix, err)
	}
	await(t, b, done)

	if !init.Result.IsSuccess() || init.IsAuthorized || init.LoginType != LoginGuest {
		t.Errorf("%s - unexpected init result %+v", authTestPrefix, init)
	}
	if init.DID != sim.Identity().DID {
		t.Errorf("%s - DID = %q, want %q", authTestPrefix, init.DID, sim.Identity().DID)
	}

	done = make(chan struct{})
	var login LoginResult
	if err := c.Login(context.Background(), LoginGuest, func(r LoginResult) { login = r; close(done) }); err != nil {
		t.Fatalf("%s - Login failed: %v", authTestPrefix, err)
	}
	await(t, b, done)

	if !login.Result.IsSuccess() {
		t.Errorf("%s - login result %v", authTestPrefix, login.Result)
	}
	if login.Current.VID != sim.Identity().VID || login.Current.AccessToken == "" {
		t.Errorf("%s - unexpected current account %+v", authTestPrefix, login.Current)
	}
	if login.Used != (Account{}) {
		t.Errorf("%s - used account = %+v, want empty", authTestPrefix, login.Used)
	}
}

func TestLogout_NotSupportedInSimulation(t *testing.T) {
	c, b, _ := newClient(t)

	done := make(chan struct{})
	var got resultapi.API
	if err := c.Logout(context.Background(), func(r resultapi.API) { got = r; close(done) }); err != nil {
		t.Fatalf("%s - Logout failed: %v", authTestPrefix, err)
	}
	await(t, b, done)

	if got.ErrorCode != resultapi.NotSupported {
		t.Errorf("%s - logout errorCode = %s, want NOT_SUPPORTED", authTestPrefix, got.ErrorCode)
	}
}

func TestQueries(t *testing.T) {
	c, _, sim := newClient(t)

	lt, err := c.GetLoginType(context.Background())
	if err != nil || lt != LoginGuest {
		t.Errorf("%s - GetLoginType = %s, %v", authTestPrefix, lt, err)
	}

	acct, err := c.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("%s - GetAccount failed: %v", authTestPrefix, err)
	}
	if acct.DID != sim.Identity().DID || acct.VID != sim.Identity().VID {
		t.Errorf("%s - unexpected account %+v", authTestPrefix, acct)
	}
}
