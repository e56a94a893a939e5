// Package authv4 is the v4 authentication module.
package authv4

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/morezero/sdk-bridge/pkg/bridge"
	"github.com/morezero/sdk-bridge/pkg/correlation"
	"github.com/morezero/sdk-bridge/pkg/dispatcher"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

// Module is the wire class name.
const Module = "AuthV4"

// ProviderChangedListener is the persistent listener name for provider changes.
const ProviderChangedListener = "providerChanged"

// ProviderType names an identity provider ("GUEST", "GOOGLE", "AUTO", ...).
type ProviderType string

const (
	ProviderAuto  ProviderType = "AUTO"
	ProviderGuest ProviderType = "GUEST"
)

// ProviderInfo describes one linked provider.
type ProviderInfo struct {
	ProviderType   string
	ProviderName   string
	ProviderUserID string
	ProviderEmail  string
}

// PlayerInfo is a signed-in player.
type PlayerInfo struct {
	PlayerID       int64
	PlayerName     string
	PlayerImageURL string
	PlayerToken    string
	DID            string
	// Providers is keyed by provider type.
	Providers map[string]ProviderInfo
	// CustomProviders is keyed by provider name.
	CustomProviders map[string]ProviderInfo
}

// SetupResult is the payload of setup.
type SetupResult struct {
	Result        resultapi.API
	IsAutoSignIn  bool
	DID           string
	ProviderTypes []ProviderType
}

// SignInResult is the payload of signIn. Player is nil when the reply has none.
type SignInResult struct {
	Result resultapi.API
	Player *PlayerInfo
}

// ProviderChange is delivered to the provider changed listener.
type ProviderChange struct {
	Result   resultapi.API
	Provider ProviderInfo
}

// Table routes AuthV4 replies.
func Table() *dispatcher.Table {
	return dispatcher.NewTable(Module).
		OneShot("setup", "signIn", "signOut", "checkProvider", "showTerms").
		Persistent(ProviderChangedListener, "setProviderChangedListener")
}

// Client calls the AuthV4 module.
type Client struct {
	caller bridge.Caller
}

// New mounts the AuthV4 table on caller.
func New(caller bridge.Caller) *Client {
	caller.Mount(Table())
	return &Client{caller: caller}
}

// Setup initializes AuthV4 and reports the available providers.
func (c *Client) Setup(ctx context.Context, fn func(SetupResult)) error {
	return c.caller.Call(ctx, Module, "setup", correlation.Typed(decodeSetup, fn), nil)
}

// SignIn signs in with provider.
func (c *Client) SignIn(ctx context.Context, provider ProviderType, fn func(SignInResult)) error {
	params := envelope.Params{"providerType": string(provider)}
	return c.caller.Call(ctx, Module, "signIn", correlation.Typed(decodeSignIn, fn), params)
}

// SignOut signs the current player out.
func (c *Client) SignOut(ctx context.Context, fn func(resultapi.API)) error {
	return c.caller.Call(ctx, Module, "signOut", correlation.Typed(resultapi.Decode, fn), nil)
}

// IsAutoSignIn reports whether a previous session can be resumed.
func (c *Client) IsAutoSignIn(ctx context.Context) (bool, error) {
	resp, err := c.caller.Query(ctx, Module, "isAutoSignIn", nil)
	if err != nil {
		return false, err
	}
	return resp.Field("isAutoSignIn").Bool(), nil
}

// GetPlayerInfo returns the signed-in player, or nil when there is none.
func (c *Client) GetPlayerInfo(ctx context.Context) (*PlayerInfo, error) {
	resp, err := c.caller.Query(ctx, Module, "getPlayerInfo", nil)
	if err != nil {
		return nil, err
	}
	return parsePlayerInfo(resp.Field("getPlayerInfo")), nil
}

// SetProviderChangedListener registers fn for every provider change. A later
// registration replaces fn.
func (c *Client) SetProviderChangedListener(ctx context.Context, fn func(ProviderChange)) error {
	return c.caller.Call(ctx, Module, "setProviderChangedListener", correlation.Typed(decodeProviderChange, fn), nil)
}

// RemoveProviderChangedListener drops the provider changed listener.
func (c *Client) RemoveProviderChangedListener() bool {
	return c.caller.RemoveListener(Module, "setProviderChangedListener")
}

func decodeSetup(resp *envelope.Response) SetupResult {
	r := SetupResult{
		Result:       resultapi.Decode(resp),
		IsAutoSignIn: resp.Field("isAutoSignIn").Bool(),
		DID:          resp.Field("did").String(),
	}
	for _, p := range resp.Field("providerTypeList").Array() {
		r.ProviderTypes = append(r.ProviderTypes, ProviderType(p.String()))
	}
	return r
}

func decodeSignIn(resp *envelope.Response) SignInResult {
	return SignInResult{
		Result: resultapi.Decode(resp),
		Player: parsePlayerInfo(resp.Field("playerInfo")),
	}
}

func decodeProviderChange(resp *envelope.Response) ProviderChange {
	return ProviderChange{
		Result:   resultapi.Decode(resp),
		Provider: parseProviderInfo(resp.Field("providerInfo")),
	}
}

func parsePlayerInfo(f gjson.Result) *PlayerInfo {
	if !f.IsObject() {
		return nil
	}
	p := &PlayerInfo{
		PlayerID:        f.Get("playerId").Int(),
		PlayerName:      f.Get("playerName").String(),
		PlayerImageURL:  f.Get("playerImageUrl").String(),
		PlayerToken:     f.Get("playerToken").String(),
		DID:             f.Get("did").String(),
		Providers:       make(map[string]ProviderInfo),
		CustomProviders: make(map[string]ProviderInfo),
	}
	for _, item := range f.Get("providerInfoData").Array() {
		info := parseProviderInfo(item)
		p.Providers[info.ProviderType] = info
	}
	for _, item := range f.Get("customProviderInfoData").Array() {
		info := parseProviderInfo(item)
		p.CustomProviders[info.ProviderName] = info
	}
	return p
}

func parseProviderInfo(f gjson.Result) ProviderInfo {
	return ProviderInfo{
		ProviderType:   f.Get("providerType").String(),
		ProviderName:   f.Get("providerName").String(),
		ProviderUserID: f.Get("providerUserId").String(),
		ProviderEmail:  f.Get("providerEmail").String(),
	}
}
