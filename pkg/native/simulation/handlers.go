package simulation

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// builtin holds the canned replies. The allow-list of a profile selects from
// these; operations without a canned reply answer with success only.
var builtin = map[string]map[string]handler{
	"Auth": {
		"initialize": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"authInitResult": map[string]interface{}{
				"isAuthorized": "false",
				"loginType":    b.identity.LoginType,
				"did":          b.identity.DID,
			}}
		}},
		"getLoginType": {fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"getLoginType": b.identity.LoginType}
		}},
		"login": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			return fields{
				"loginType":      b.identity.LoginType,
				"currentAccount": b.account(),
				"usedAccount":    map[string]interface{}{},
			}
		}},
		"getAccount": {fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"getAccount": b.account()}
		}},
	},
	"AuthV4": {
		"setup": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			return fields{
				"isAutoSignIn":     false,
				"did":              b.identity.DID,
				"providerTypeList": []string{"GUEST"},
			}
		}},
		"signIn": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"playerInfo": b.playerInfo()}
		}},
		"signOut": {async: true, fn: func(*Backend, gjson.Result) fields { return nil }},
		"isAutoSignIn": {fn: func(*Backend, gjson.Result) fields {
			return fields{"isAutoSignIn": true}
		}},
		"getPlayerInfo": {fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"getPlayerInfo": b.playerInfo()}
		}},
	},
	"Configuration": {
		"getHiveSDKVersion": {fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"getHiveSDKVersion": b.profile.SDKVersion}
		}},
	},
	"Push": {
		"getRemotePush": {async: true, fn: func(*Backend, gjson.Result) fields {
			return fields{"remotePush": map[string]interface{}{"isAgreeNotice": true, "isAgreeNight": false}}
		}},
		"setRemotePush": {async: true, fn: func(_ *Backend, req gjson.Result) fields {
			return fields{"remotePush": map[string]interface{}{
				"isAgreeNotice": req.Get("remotePush.isAgreeNotice").Bool(),
				"isAgreeNight":  req.Get("remotePush.isAgreeNight").Bool(),
			}}
		}},
		"registerLocalPush": {async: true, fn: func(b *Backend, req gjson.Result) fields {
			lp := req.Get("localPush")
			out := map[string]interface{}{}
			lp.ForEach(func(k, v gjson.Result) bool {
				out[k.String()] = v.Value()
				return true
			})
			id := lp.Get("noticeID").Int()
			delete(out, "noticeID")
			out["noticeId"] = id
			b.store.schedule(id, out)
			return fields{"localPush": out}
		}},
		"unregisterLocalPush": {async: true, fn: func(b *Backend, req gjson.Result) fields {
			b.store.unschedule(req.Get("noticeID").Int())
			return nil
		}},
		"unregisterLocalPushes": {async: true, fn: func(b *Backend, req gjson.Result) fields {
			for _, id := range req.Get("noticeIDs").Array() {
				b.store.unschedule(id.Int())
			}
			return nil
		}},
		"getForegroundPush": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"pushSetting": b.store.getForeground()}
		}},
		"setForegroundPush": {async: true, fn: func(b *Backend, req gjson.Result) fields {
			setting := map[string]interface{}{}
			req.Get("pushSetting").ForEach(func(k, v gjson.Result) bool {
				setting[k.String()] = v.Bool()
				return true
			})
			return fields{"pushSetting": b.store.setForeground(setting)}
		}},
	},
	"IAPV4": {
		"marketConnect": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			b.store.selectMarket(b.profile.Market)
			return fields{"iapV4TypeList": []string{b.profile.Market}}
		}},
		"getSelectedMarket": {fn: func(b *Backend, _ gjson.Result) fields {
			if m := b.store.selectedMarket(); m != "" {
				return fields{"iapv4Type": m}
			}
			return nil
		}},
		"getProductInfo": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			products := make([]interface{}, 0, len(b.profile.Products))
			for _, pid := range b.profile.Products {
				products = append(products, b.product(pid))
			}
			return fields{"iapV4ProductList": products, "balance": 0}
		}},
		"purchase": {async: true, fn: func(b *Backend, req gjson.Result) fields {
			pid := req.Get("marketPid").String()
			receipt := map[string]interface{}{
				"type":           b.profile.Market,
				"product":        b.product(pid),
				"quantity":       1,
				"iapPayload":     req.Get("iapPayload").String(),
				"hiveiapReceipt": fmt.Sprintf("sim-receipt-%s-%s", pid, b.identity.DID),
				"bypassInfo":     "",
			}
			b.store.addPending(pid, receipt)
			return fields{"iapV4Receipt": receipt}
		}},
		"restore": {async: true, fn: func(b *Backend, _ gjson.Result) fields {
			return fields{"iapv4ReceiptList": b.store.pendingReceipts()}
		}},
		"transactionFinish": {async: true, fn: func(b *Backend, req gjson.Result) fields {
			pid := req.Get("marketPid").String()
			b.store.finish(pid)
			return fields{"marketPid": pid}
		}},
	},
}

func (b *Backend) product(pid string) map[string]interface{} {
	return map[string]interface{}{
		"productType":        "consumable",
		"marketPid":          pid,
		"currency":           "USD",
		"price":              0.99,
		"displayPrice":       "$0.99",
		"title":              pid,
		"productDescription": "simulated product " + pid,
	}
}

func (b *Backend) account() map[string]interface{} {
	return map[string]interface{}{
		"vid":         b.identity.VID,
		"uid":         "",
		"did":         b.identity.DID,
		"accessToken": b.identity.AccessToken,
	}
}

func (b *Backend) playerInfo() map[string]interface{} {
	return map[string]interface{}{
		"playerId":               b.identity.PlayerID,
		"playerName":             b.identity.PlayerName,
		"playerImageUrl":         b.identity.PlayerImageURL,
		"playerToken":            b.identity.PlayerToken,
		"did":                    b.identity.DID,
		"providerInfoData":       []interface{}{},
		"customProviderInfoData": []interface{}{},
	}
}
