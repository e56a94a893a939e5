// Package iapv4 is the in-app purchase module.
package iapv4

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
const Module = "IAPV4"

// Market is a store the runtime can sell through.
type Market string

const (
	MarketNotSelected       Market = "NOT_SELECTED"
	MarketAppleAppStore     Market = "APPLE_APPSTORE"
	MarketGooglePlayStore   Market = "GOOGLE_PLAYSTORE"
	MarketHiveLebi          Market = "HIVE_LEBI"
	MarketOneStore          Market = "ONESTORE"
	MarketAmazonAppStore    Market = "AMAZON_APPSTORE"
	MarketSamsungGalaxy     Market = "SAMSUNG_GALAXYSTORE"
	MarketHuaweiAppGallery  Market = "HUAWEI_APPGALLERY"
	MarketFuntap            Market = "FUNTAP"
	MarketOppoAppMarket     Market = "OPPO_APPMARKET"
	MarketVivoAppStore      Market = "VIVO_APPSTORE"
	MarketTencentMyApp      Market = "TENCENT_MYAPP"
	MarketXiaomiAppStore    Market = "XIAOMI_APPSTORE"
	MarketHuaweiChina       Market = "HUAWEI_APPGALLERY_CHINA"
	MarketFacebookCloudGame Market = "FACEBOOK_CLOUD_GAME"
	MarketHiveStore         Market = "HIVESTORE"
	MarketSteam             Market = "STEAM"
	MarketNowGG             Market = "NOWGG"
)

var knownMarkets = map[Market]bool{
	MarketAppleAppStore: true, MarketGooglePlayStore: true, MarketHiveLebi: true,
	MarketOneStore: true, MarketAmazonAppStore: true, MarketSamsungGalaxy: true,
	MarketHuaweiAppGallery: true, MarketFuntap: true, MarketOppoAppMarket: true,
	MarketVivoAppStore: true, MarketTencentMyApp: true, MarketXiaomiAppStore: true,
	MarketHuaweiChina: true, MarketFacebookCloudGame: true, MarketHiveStore: true,
	MarketSteam: true, MarketNowGG: true,
}

// ParseMarket maps a wire value to a Market. Empty values are NOT_SELECTED;
// unrecognised names fall back to GOOGLE_PLAYSTORE as the runtime does.
func ParseMarket(s string) Market {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || Market(s) == MarketNotSelected {
		return MarketNotSelected
	}
	if knownMarkets[Market(s)] {
		return Market(s)
	}
	return MarketGooglePlayStore
}

// Product is a purchasable item.
type Product struct {
	ProductType          string  `json:"productType"`
	MarketPid            string  `json:"marketPid"`
	Currency             string  `json:"currency"`
	Price                float64 `json:"price"`
	DisplayPrice         string  `json:"displayPrice"`
	Title                string  `json:"title"`
	ProductDescription   string  `json:"productDescription"`
	OriginalJSON         string  `json:"originalJson"`
	OriginalMarketJSON   string  `json:"originalMarketJson"`
	DisplayOriginalPrice string  `json:"displayOriginalPrice"`
	OriginalPrice        float64 `json:"originalPrice"`
	IconURL              string  `json:"iconURL"`
	CoinsReward          int     `json:"coinsReward"`
}

// Receipt is the proof of one purchase. HIVESTORE receipts carry only the
// market.
type Receipt struct {
	Type           Market
	Product        Product
	Quantity       int
	IAPPayload     string
	HiveIAPReceipt string
	BypassInfo     string
	// Raw is the receipt object as received.
	Raw gjson.Result
}

// MarketResult is the payload of marketConnect.
type MarketResult struct {
	Result  resultapi.API
	Markets []Market
}

// ProductResult is the payload of the product info calls.
type ProductResult struct {
	Result   resultapi.API
	Products []Product
	Balance  int
}

// PurchaseResult is the payload of purchase.
type PurchaseResult struct {
	Result  resultapi.API
	Receipt *Receipt
}

// RestoreResult is the payload of restore.
type RestoreResult struct {
	Result   resultapi.API
	Receipts []Receipt
}

// FinishResult is the payload of transactionFinish.
type FinishResult struct {
	Result    resultapi.API
	MarketPid string
}

// MultiFinishResult is the payload of transactionMultiFinish. Results and
// MarketPids are parallel. Result is only set when the call failed as a
// whole.
type MultiFinishResult struct {
	Result     *resultapi.API
	Results    []resultapi.API
	MarketPids []string
}

// BalanceResult is the payload of getBalanceInfo.
type BalanceResult struct {
	Result  resultapi.API
	Balance int
}

// Table routes IAPV4 replies.
func Table() *dispatcher.Table {
	return dispatcher.NewTable(Module).
		OneShot("marketConnect", "getProductInfo", "getMarketProductInfo", "getSubscriptionProductInfo",
			"purchase", "restore", "transactionFinish", "transactionMultiFinish",
			"showMarketSelection", "getBalanceInfo", "checkPromotePurchase")
}

// Client calls the IAPV4 module.
type Client struct {
	caller bridge.Caller
}

// New mounts the IAPV4 table on caller.
func New(caller bridge.Caller) *Client {
	caller.Mount(Table())
	return &Client{caller: caller}
}

// MarketConnect connects to the stores available on this device.
func (c *Client) MarketConnect(ctx context.Context, fn func(MarketResult)) error {
	return c.caller.Call(ctx, Module, "marketConnect", correlation.Typed(decodeMarkets, fn), nil)
}

// ShowMarketSelection lets the user pick a store.
func (c *Client) ShowMarketSelection(ctx context.Context, fn func(MarketResult)) error {
	return c.caller.Call(ctx, Module, "showMarketSelection", correlation.Typed(decodeMarkets, fn), nil)
}

// GetProductInfo fetches the products registered for the selected market.
func (c *Client) GetProductInfo(ctx context.Context, fn func(ProductResult)) error {
	return c.caller.Call(ctx, Module, "getProductInfo", correlation.Typed(decodeProducts, fn), nil)
}

// GetMarketProductInfo fetches the products with the given market ids.
func (c *Client) GetMarketProductInfo(ctx context.Context, marketPids []string, fn func(ProductResult)) error {
	if marketPids == nil {
		marketPids = []string{}
	}
	params := envelope.Params{"marketPidList": marketPids}
	return c.caller.Call(ctx, Module, "getMarketProductInfo", correlation.Typed(decodeProducts, fn), params)
}

// Purchase buys marketPid. payload is echoed back in the receipt.
func (c *Client) Purchase(ctx context.Context, marketPid, payload string, fn func(PurchaseResult)) error {
	params := envelope.Params{"marketPid": marketPid, "iapPayload": payload}
	return c.caller.Call(ctx, Module, "purchase", correlation.Typed(decodePurchase, fn), params)
}

// Restore fetches the receipts of purchases that were not finished.
func (c *Client) Restore(ctx context.Context, fn func(RestoreResult)) error {
	return c.caller.Call(ctx, Module, "restore", correlation.Typed(decodeRestore, fn), nil)
}

// TransactionFinish marks the purchase of marketPid as delivered.
func (c *Client) TransactionFinish(ctx context.Context, marketPid string, fn func(FinishResult)) error {
	params := envelope.Params{"marketPid": marketPid}
	return c.caller.Call(ctx, Module, "transactionFinish", correlation.Typed(decodeFinish, fn), params)
}

// TransactionMultiFinish marks several purchases as delivered.
func (c *Client) TransactionMultiFinish(ctx context.Context, marketPids []string, fn func(MultiFinishResult)) error {
	if marketPids == nil {
		marketPids = []string{}
	}
	params := envelope.Params{"marketPidList": marketPids}
	return c.caller.Call(ctx, Module, "transactionMultiFinish", correlation.Typed(decodeMultiFinish, fn), params)
}

// GetBalanceInfo fetches the Lebi balance.
func (c *Client) GetBalanceInfo(ctx context.Context, fn func(BalanceResult)) error {
	return c.caller.Call(ctx, Module, "getBalanceInfo", correlation.Typed(decodeBalance, fn), nil)
}

// GetSelectedMarket returns the market chosen by marketConnect, or
// NOT_SELECTED before it.
func (c *Client) GetSelectedMarket(ctx context.Context) (Market, error) {
	resp, err := c.caller.Query(ctx, Module, "getSelectedMarket", nil)
	if err != nil {
		return MarketNotSelected, err
	}
	return ParseMarket(resp.Field("iapv4Type").String()), nil
}

// GetAccountUUID returns the account id as a UUID, or "" when signed out.
func (c *Client) GetAccountUUID(ctx context.Context) (string, error) {
	resp, err := c.caller.Query(ctx, Module, "getAccountUuid", nil)
	if err != nil {
		return "", err
	}
	return resp.Field("accountUuid").String(), nil
}

func decodeMarkets(resp *envelope.Response) MarketResult {
	r := MarketResult{Result: resultapi.Decode(resp)}
	for _, m := range resp.Field("iapV4TypeList").Array() {
		r.Markets = append(r.Markets, ParseMarket(m.String()))
	}
	return r
}

func decodeProducts(resp *envelope.Response) ProductResult {
	r := ProductResult{
		Result:  resultapi.Decode(resp),
		Balance: int(resp.Field("balance").Int()),
	}
	resp.DecodeField("iapV4ProductList", &r.Products)
	return r
}

func decodeReceipt(obj gjson.Result) *Receipt {
	if !obj.IsObject() {
		return nil
	}
	rc := &Receipt{Type: ParseMarket(obj.Get("type").String()), Raw: obj}
	if rc.Type == MarketHiveStore {
		return rc
	}
	rc.Quantity = int(obj.Get("quantity").Int())
	rc.IAPPayload = obj.Get("iapPayload").String()
	rc.HiveIAPReceipt = obj.Get("hiveiapReceipt").String()
	rc.BypassInfo = obj.Get("bypassInfo").String()
	if p := obj.Get("product"); p.IsObject() {
		rc.Product = Product{
			ProductType:        p.Get("productType").String(),
			MarketPid:          p.Get("marketPid").String(),
			Currency:           p.Get("currency").String(),
			Price:              p.Get("price").Float(),
			DisplayPrice:       p.Get("displayPrice").String(),
			Title:              p.Get("title").String(),
			ProductDescription: p.Get("productDescription").String(),
			OriginalJSON:       p.Get("originalJson").String(),
		}
	}
	return rc
}

func decodePurchase(resp *envelope.Response) PurchaseResult {
	return PurchaseResult{
		Result:  resultapi.Decode(resp),
		Receipt: decodeReceipt(resp.Field("iapV4Receipt")),
	}
}

func decodeRestore(resp *envelope.Response) RestoreResult {
	r := RestoreResult{Result: resultapi.Decode(resp)}
	for _, obj := range resp.Field("iapv4ReceiptList").Array() {
		if rc := decodeReceipt(obj); rc != nil {
			r.Receipts = append(r.Receipts, *rc)
		}
	}
	return r
}

func decodeFinish(resp *envelope.Response) FinishResult {
	return FinishResult{
		Result:    resultapi.Decode(resp),
		MarketPid: resp.Field("marketPid").String(),
	}
}

func decodeMultiFinish(resp *envelope.Response) MultiFinishResult {
	var r MultiFinishResult
	if resp.Has(envelope.KeyResultAPI) {
		api := resultapi.Decode(resp)
		r.Result = &api
	}
	for _, obj := range resp.Field("resultList").Array() {
		r.Results = append(r.Results, resultapi.Parse(obj))
	}
	for _, pid := range resp.Field("marketPidList").Array() {
		r.MarketPids = append(r.MarketPids, pid.String())
	}
	return r
}

func decodeBalance(resp *envelope.Response) BalanceResult {
	return BalanceResult{
		Result:  resultapi.Decode(resp),
		Balance: int(resp.Field("balance").Int()),
	}
}
