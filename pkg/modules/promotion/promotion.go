// Package promotion is the promotional views module. View calls fan their
// replies out into lifecycle stages under one handle.
package promotion

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/morezero/sdk-bridge/pkg/bridge"
	"github.com/morezero/sdk-bridge/pkg/correlation"
	"github.com/morezero/sdk-bridge/pkg/dispatcher"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

// Module is the wire class name.
const Module = "Promotion"

// EngagementListener is the persistent listener name for engagement events.
const EngagementListener = "engagement"

// Type selects the promotion view shown by ShowPromotion.
type Type string

const (
	TypeBanner       Type = "BANNER"
	TypeNews         Type = "NEWS"
	TypeNotice       Type = "NOTICE"
	TypeBannerLegacy Type = "BANNER_LEGACY"
)

// CustomType selects the content kind shown by ShowCustomContents.
type CustomType string

const (
	CustomView   CustomType = "VIEW"
	CustomBoard  CustomType = "BOARD"
	CustomSpot   CustomType = "SPOT"
	CustomDirect CustomType = "DIRECT"
)

// OfferwallState is the availability of the offerwall.
type OfferwallState string

const (
	OfferwallEnabled  OfferwallState = "ENABLED"
	OfferwallDisabled OfferwallState = "DISABLED"
	OfferwallUnknown  OfferwallState = "UNKNOWN"
)

// ViewEvent is delivered once per stage of a promotional view.
type ViewEvent struct {
	Result resultapi.API
	Stage  correlation.Stage
}

// ViewHandlers holds one callback per stage. Nil callbacks are not registered,
// so replies for those stages are dropped.
type ViewHandlers struct {
	Open           func(ViewEvent)
	Close          func(ViewEvent)
	StartPlayback  func(ViewEvent)
	FinishPlayback func(ViewEvent)
	Exit           func(ViewEvent)
}

// BadgeInfo is one badge entry.
type BadgeInfo struct {
	Target      string `json:"target"`
	ContentsKey string `json:"contentsKey"`
	BadgeType   string `json:"badgeType"`
}

// BadgeResult is the payload of getBadgeInfo.
type BadgeResult struct {
	Result resultapi.API
	Badges []BadgeInfo
}

// ViewInfo is what a game needs to load a custom content view in its own
// web view.
type ViewInfo struct {
	URL        string `json:"url"`
	PostString string `json:"postString"`
}

// ViewInfoResult is the payload of getViewInfo.
type ViewInfoResult struct {
	Result resultapi.API
	Views  []ViewInfo
}

// EngagementEvent is delivered to the engagement listener.
type EngagementEvent struct {
	Result resultapi.API
	Type   string
	State  string
	// Param is the raw event parameter object.
	Param gjson.Result
}

var viewOps = []string{"showPromotion", "showCustomContents", "showCustomContentsOnGameWindow", "showNews", "showReview", "showOfferwall"}

// Table routes Promotion replies.
func Table() *dispatcher.Table {
	return dispatcher.NewTable(Module).
		MultiSlot(dispatcher.StageField, correlation.ViewStages, viewOps...).
		MultiSlot(dispatcher.StageField, correlation.ExitStages, "showExit").
		OneShot("getBadgeInfo", "getViewInfo").
		Persistent(EngagementListener, "setEngagementHandler")
}

// Client calls the Promotion module.
type Client struct {
	caller bridge.Caller
}

// New mounts the Promotion table on caller.
func New(caller bridge.Caller) *Client {
	caller.Mount(Table())
	return &Client{caller: caller}
}

// ShowPromotion shows a promotion view. fn runs once for each stage.
func (c *Client) ShowPromotion(ctx context.Context, t Type, forced bool, fn func(ViewEvent)) error {
	params := envelope.Params{"promotionType": string(t), "isForced": forced}
	return c.view(ctx, "showPromotion", params, fn)
}

// ShowCustomContents shows custom content registered under contentsKey.
func (c *Client) ShowCustomContents(ctx context.Context, t CustomType, contentsKey string, fn func(ViewEvent)) error {
	params := envelope.Params{"customType": string(t), "contentsKey": contentsKey}
	return c.view(ctx, "showCustomContents", params, fn)
}

// ShowCustomContentsOnGameWindow shows custom content inside the game window
// rather than a full screen view.
func (c *Client) ShowCustomContentsOnGameWindow(ctx context.Context, t CustomType, contentsKey string, fn func(ViewEvent)) error {
	params := envelope.Params{"customType": string(t), "contentsKey": contentsKey}
	return c.view(ctx, "showCustomContentsOnGameWindow", params, fn)
}

// GetViewInfo fetches the web view parameters of custom content.
func (c *Client) GetViewInfo(ctx context.Context, t CustomType, contentsKey string, fn func(ViewInfoResult)) error {
	params := envelope.Params{"customType": string(t), "contentsKey": contentsKey}
	return c.caller.Call(ctx, Module, "getViewInfo", correlation.Typed(decodeViewInfo, fn), params)
}

// ShowNews shows the news board, optionally opened at menu.
func (c *Client) ShowNews(ctx context.Context, menu string, giftPids []int, fn func(ViewEvent)) error {
	if giftPids == nil {
		giftPids = []int{}
	}
	params := envelope.Params{"menu": menu, "giftPidList": giftPids}
	return c.view(ctx, "showNews", params, fn)
}

// ShowReview shows the review prompt.
func (c *Client) ShowReview(ctx context.Context, fn func(ViewEvent)) error {
	return c.view(ctx, "showReview", nil, fn)
}

// ShowOfferwall shows the offerwall.
func (c *Client) ShowOfferwall(ctx context.Context, fn func(ViewEvent)) error {
	return c.view(ctx, "showOfferwall", nil, fn)
}

// ShowExit shows the exit dialog. fn runs for open, close and exit.
func (c *Client) ShowExit(ctx context.Context, fn func(ViewEvent)) error {
	return c.view(ctx, "showExit", nil, fn)
}

// ShowPromotionStages is ShowPromotion with a distinct callback per stage.
func (c *Client) ShowPromotionStages(ctx context.Context, t Type, forced bool, h ViewHandlers) error {
	params := envelope.Params{"promotionType": string(t), "isForced": forced}
	return c.caller.CallStages(ctx, Module, "showPromotion", h.slots(), params)
}

func (c *Client) view(ctx context.Context, op string, params envelope.Params, fn func(ViewEvent)) error {
	return c.caller.Call(ctx, Module, op, correlation.Typed(decodeView, fn), params)
}

// GetBadgeInfo fetches the badge list.
func (c *Client) GetBadgeInfo(ctx context.Context, fn func(BadgeResult)) error {
	return c.caller.Call(ctx, Module, "getBadgeInfo", correlation.Typed(decodeBadges, fn), nil)
}

// GetOfferwallState returns whether the offerwall can be shown.
func (c *Client) GetOfferwallState(ctx context.Context) (OfferwallState, error) {
	resp, err := c.caller.Query(ctx, Module, "getOfferwallState", nil)
	if err != nil {
		return OfferwallUnknown, err
	}
	switch OfferwallState(strings.ToUpper(resp.Field("offerwallState").String())) {
	case OfferwallEnabled:
		return OfferwallEnabled, nil
	case OfferwallDisabled:
		return OfferwallDisabled, nil
	default:
		return OfferwallUnknown, nil
	}
}

// SetEngagementListener registers fn for every engagement event. A later
// registration replaces fn.
func (c *Client) SetEngagementListener(ctx context.Context, fn func(EngagementEvent)) error {
	return c.caller.Call(ctx, Module, "setEngagementHandler", correlation.Typed(decodeEngagement, fn), nil)
}

// SetEngagementReady tells the runtime whether engagement events may be
// delivered. Transport errors are reported as RESPONSE_FAIL.
func (c *Client) SetEngagementReady(ctx context.Context, ready bool) resultapi.API {
	resp, err := c.caller.Query(ctx, Module, "setEngagementReady", envelope.Params{"isReady": ready})
	if err != nil {
		return resultapi.ResponseFailed(err)
	}
	return resultapi.Decode(resp)
}

func (h ViewHandlers) slots() map[correlation.Stage]correlation.Continuation {
	fns := map[correlation.Stage]func(ViewEvent){
		correlation.StageOpen:           h.Open,
		correlation.StageClose:          h.Close,
		correlation.StageStartPlayback:  h.StartPlayback,
		correlation.StageFinishPlayback: h.FinishPlayback,
		correlation.StageExit:           h.Exit,
	}
	out := make(map[correlation.Stage]correlation.Continuation, len(fns))
	for stage, fn := range fns {
		if fn != nil {
			out[stage] = correlation.Typed(decodeView, fn)
		}
	}
	return out
}

func decodeView(resp *envelope.Response) ViewEvent {
	stage := correlation.Stage(resp.StageKey)
	if stage == correlation.StageUnknown {
		stage = correlation.ParseStage(resp.Field(dispatcher.StageField).String())
	}
	return ViewEvent{Result: resultapi.Decode(resp), Stage: stage}
}

func decodeBadges(resp *envelope.Response) BadgeResult {
	r := BadgeResult{Result: resultapi.Decode(resp)}
	resp.DecodeField("badgeInfoList", &r.Badges)
	return r
}

func decodeViewInfo(resp *envelope.Response) ViewInfoResult {
	r := ViewInfoResult{Result: resultapi.Decode(resp)}
	resp.DecodeField("viewInfoList", &r.Views)
	return r
}

func decodeEngagement(resp *envelope.Response) EngagementEvent {
	return EngagementEvent{
		Result: resultapi.Decode(resp),
		Type:   resp.Field("engagementEventType").String(),
		State:  resp.Field("engagementEventState").String(),
		Param:  resp.Field("param"),
	}
}
