// Package auth is the v1 authentication module.
package auth

import (
	"context"
	"strings"

	"github.com/morezero/sdk-bridge/pkg/bridge"
	"github.com/morezero/sdk-bridge/pkg/correlation"
	"github.com/morezero/sdk-bridge/pkg/dispatcher"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

// Module is the wire class name.
const Module = "Auth"

// LoginType is the kind of login the runtime can perform.
type LoginType string

const (
	LoginGuest   LoginType = "GUEST"
	LoginAccount LoginType = "ACCOUNT"
	LoginSelect  LoginType = "SELECT"
	LoginAuto    LoginType = "AUTO"
)

// ParseLoginType maps a wire value to a LoginType. Unknown values are GUEST.
func ParseLoginType(s string) LoginType {
	switch LoginType(strings.ToUpper(s)) {
	case LoginAccount:
		return LoginAccount
	case LoginSelect:
		return LoginSelect
	case LoginAuto:
		return LoginAuto
	default:
		return LoginGuest
	}
}

// Account is a signed-in user.
type Account struct {
	VID         string `json:"vid"`
	UID         string `json:"uid"`
	DID         string `json:"did"`
	AccessToken string `json:"accessToken"`
}

// InitResult is the payload of initialize.
type InitResult struct {
	Result       resultapi.API
	IsAuthorized bool
	LoginType    LoginType
	DID          string
	IsPGSLogin   bool
	PlayerName   string
	PlayerID     string
}

// LoginResult is the payload of login.
type LoginResult struct {
	Result    resultapi.API
	LoginType LoginType
	Current   Account
	Used      Account
}

// Table routes Auth replies.
func Table() *dispatcher.Table {
	return dispatcher.NewTable(Module).
		OneShot("initialize", "login", "logout", "showTerms", "checkMaintenance")
}

// Client calls the Auth module.
type Client struct {
	caller bridge.Caller
}

// New mounts the Auth table on caller.
func New(caller bridge.Caller) *Client {
	caller.Mount(Table())
	return &Client{caller: caller}
}

// Initialize initializes the native SDK.
func (c *Client) Initialize(ctx context.Context, fn func(InitResult)) error {
	return c.caller.Call(ctx, Module, "initialize", correlation.Typed(decodeInit, fn), nil)
}

// Login logs in with the given login type.
func (c *Client) Login(ctx context.Context, loginType LoginType, fn func(LoginResult)) error {
	params := envelope.Params{"loginType": string(loginType)}
	return c.caller.Call(ctx, Module, "login", correlation.Typed(decodeLogin, fn), params)
}

// Logout logs the current user out.
func (c *Client) Logout(ctx context.Context, fn func(resultapi.API)) error {
	return c.caller.Call(ctx, Module, "logout", correlation.Typed(resultapi.Decode, fn), nil)
}

// GetLoginType returns the login type available for the current session.
func (c *Client) GetLoginType(ctx context.Context) (LoginType, error) {
	resp, err := c.caller.Query(ctx, Module, "getLoginType", nil)
	if err != nil {
		return LoginGuest, err
	}
	return ParseLoginType(resp.Field("getLoginType").String()), nil
}

// GetAccount returns the signed-in account. Missing fields are empty.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	resp, err := c.caller.Query(ctx, Module, "getAccount", nil)
	if err != nil {
		return Account{}, err
	}
	var acct Account
	resp.DecodeField("getAccount", &acct)
	return acct, nil
}

func decodeInit(resp *envelope.Response) InitResult {
	f := resp.Field("authInitResult")
	return InitResult{
		Result:       resultapi.Decode(resp),
		IsAuthorized: f.Get("isAuthorized").Bool(),
		LoginType:    ParseLoginType(f.Get("loginType").String()),
		DID:          f.Get("did").String(),
		IsPGSLogin:   f.Get("isPGSLogin").Bool(),
		PlayerName:   f.Get("playerName").String(),
		PlayerID:     f.Get("playerId").String(),
	}
}

func decodeLogin(resp *envelope.Response) LoginResult {
	r := LoginResult{
		Result:    resultapi.Decode(resp),
		LoginType: ParseLoginType(resp.Field("loginType").String()),
	}
	resp.DecodeField("currentAccount", &r.Current)
	resp.DecodeField("usedAccount", &r.Used)
	return r
}
