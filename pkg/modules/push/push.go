// Package push is the remote and local notification module.
package push

import (
	"context"

	"github.com/morezero/sdk-bridge/pkg/bridge"
	"github.com/morezero/sdk-bridge/pkg/correlation"
	"github.com/morezero/sdk-bridge/pkg/dispatcher"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

// Module is the wire class name.
const Module = "Push"

// RemotePush is the user's consent to remote notifications.
type RemotePush struct {
	IsAgreeNotice bool `json:"isAgreeNotice"`
	IsAgreeNight  bool `json:"isAgreeNight"`
}

// RemotePushResult is the payload of getRemotePush and setRemotePush.
type RemotePushResult struct {
	Result resultapi.API
	Push   RemotePush
}

// LocalPush is a scheduled local notification. After is in seconds.
type LocalPush struct {
	NoticeID        int    `json:"noticeId"`
	Title           string `json:"title"`
	Msg             string `json:"msg"`
	After           int64  `json:"after"`
	GroupID         string `json:"groupId"`
	BigMsg          string `json:"bigmsg"`
	Ticker          string `json:"ticker"`
	Type            string `json:"type"`
	Icon            string `json:"icon"`
	Sound           string `json:"sound"`
	Active          string `json:"active"`
	BroadcastAction string `json:"broadcastAction"`
	BucketType      int    `json:"buckettype"`
	BucketSize      int    `json:"bucketsize"`
	BigPicture      string `json:"bigpicture"`
}

// wire is the request form. The runtime reads the id as noticeID on the way
// in and writes it as noticeId on the way out.
func (p LocalPush) wire() map[string]interface{} {
	return map[string]interface{}{
		"noticeID":        p.NoticeID,
		"title":           p.Title,
		"msg":             p.Msg,
		"after":           p.After,
		"groupId":         p.GroupID,
		"bigmsg":          p.BigMsg,
		"ticker":          p.Ticker,
		"type":            p.Type,
		"icon":            p.Icon,
		"sound":           p.Sound,
		"active":          p.Active,
		"broadcastAction": p.BroadcastAction,
		"buckettype":      p.BucketType,
		"bucketsize":      p.BucketSize,
		"bigpicture":      p.BigPicture,
	}
}

// LocalPushResult is the payload of registerLocalPush.
type LocalPushResult struct {
	Result resultapi.API
	Push   LocalPush
}

// Setting controls whether notifications show while the app is in front.
type Setting struct {
	UseForegroundRemotePush bool `json:"useForegroundRemotePush"`
	UseForegroundLocalPush  bool `json:"useForegroundLocalPush"`
}

// SettingResult is the payload of getForegroundPush and setForegroundPush.
type SettingResult struct {
	Result  resultapi.API
	Setting Setting
}

// Table routes Push replies.
func Table() *dispatcher.Table {
	return dispatcher.NewTable(Module).
		OneShot("getRemotePush", "setRemotePush", "registerLocalPush", "getForegroundPush", "setForegroundPush")
}

// Client calls the Push module.
type Client struct {
	caller bridge.Caller
}

// New mounts the Push table on caller.
func New(caller bridge.Caller) *Client {
	caller.Mount(Table())
	return &Client{caller: caller}
}

// GetRemotePush fetches the remote notification consent.
func (c *Client) GetRemotePush(ctx context.Context, fn func(RemotePushResult)) error {
	return c.caller.Call(ctx, Module, "getRemotePush", correlation.Typed(decodeRemote, fn), nil)
}

// SetRemotePush stores the remote notification consent and answers with the
// stored value.
func (c *Client) SetRemotePush(ctx context.Context, rp RemotePush, fn func(RemotePushResult)) error {
	params := envelope.Params{"remotePush": map[string]interface{}{
		"isAgreeNotice": rp.IsAgreeNotice,
		"isAgreeNight":  rp.IsAgreeNight,
	}}
	return c.caller.Call(ctx, Module, "setRemotePush", correlation.Typed(decodeRemote, fn), params)
}

// RegisterLocalPush schedules a local notification.
func (c *Client) RegisterLocalPush(ctx context.Context, lp LocalPush, fn func(LocalPushResult)) error {
	params := envelope.Params{"localPush": lp.wire()}
	return c.caller.Call(ctx, Module, "registerLocalPush", correlation.Typed(decodeLocal, fn), params)
}

// UnregisterLocalPush cancels a scheduled local notification. Nothing is
// reported back.
func (c *Client) UnregisterLocalPush(ctx context.Context, noticeID int) error {
	return c.caller.Notify(ctx, Module, "unregisterLocalPush", envelope.Params{"noticeID": noticeID})
}

// UnregisterLocalPushes cancels several scheduled local notifications.
func (c *Client) UnregisterLocalPushes(ctx context.Context, noticeIDs []int) error {
	if noticeIDs == nil {
		noticeIDs = []int{}
	}
	return c.caller.Notify(ctx, Module, "unregisterLocalPushes", envelope.Params{"noticeIDs": noticeIDs})
}

// UnregisterAllLocalPushes cancels every scheduled local notification.
func (c *Client) UnregisterAllLocalPushes(ctx context.Context) error {
	return c.caller.Notify(ctx, Module, "unregisterAllLocalPushes", nil)
}

// GetForegroundPush fetches the foreground notification setting.
func (c *Client) GetForegroundPush(ctx context.Context, fn func(SettingResult)) error {
	return c.caller.Call(ctx, Module, "getForegroundPush", correlation.Typed(decodeSetting, fn), nil)
}

// SetForegroundPush stores the foreground notification setting.
func (c *Client) SetForegroundPush(ctx context.Context, s Setting, fn func(SettingResult)) error {
	params := envelope.Params{"pushSetting": map[string]interface{}{
		"useForegroundRemotePush": s.UseForegroundRemotePush,
		"useForegroundLocalPush":  s.UseForegroundLocalPush,
	}}
	return c.caller.Call(ctx, Module, "setForegroundPush", correlation.Typed(decodeSetting, fn), params)
}

// RequestPermission asks the platform for notification permission.
func (c *Client) RequestPermission(ctx context.Context) error {
	return c.caller.Notify(ctx, Module, "requestPushPermission", nil)
}

func decodeRemote(resp *envelope.Response) RemotePushResult {
	r := RemotePushResult{Result: resultapi.Decode(resp)}
	resp.DecodeField("remotePush", &r.Push)
	return r
}

func decodeLocal(resp *envelope.Response) LocalPushResult {
	r := LocalPushResult{Result: resultapi.Decode(resp)}
	resp.DecodeField("localPush", &r.Push)
	return r
}

func decodeSetting(resp *envelope.Response) SettingResult {
	r := SettingResult{Result: resultapi.Decode(resp)}
	resp.DecodeField("pushSetting", &r.Setting)
	return r
}
