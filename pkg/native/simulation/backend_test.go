package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morezero/sdk-bridge/pkg/correlation"
	"github.com/morezero/sdk-bridge/pkg/dispatcher"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/executor"
	"github.com/morezero/sdk-bridge/pkg/native"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

const backendTestPrefix = "simulation:backend_test"

func waitForReply(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for async reply", backendTestPrefix)
		return nil
	}
}

func newBackend(t *testing.T) (*Backend, <-chan []byte) {
	t.Helper()
	b := New(nil)
	ch := make(chan []byte, 8)
	b.SetDeliver(func(reply []byte) { ch <- reply })
	t.Cleanup(func() { b.Close() })
	return b, ch
}

func call(t *testing.T, module, op string, handle *int64, params envelope.Params) []byte {
	t.Helper()
	data, err := envelope.NewBuilder("sim-test", "unity").Build(module, op, handle, params).Encode()
	if err != nil {
		t.Fatalf("%s - encode failed: %v", backendTestPrefix, err)
	}
	return data
}

func TestSend_SyncQuery(t *testing.T) {
	b, _ := newBackend(t)

	reply, err := b.Send(context.Background(), call(t, "Auth", "getLoginType", nil, nil))
	if err != nil {
		t.Fatalf("%s - Send failed: %v", backendTestPrefix, err)
	}
	resp, err := envelope.ParseResponse(reply)
	if err != nil {
		t.Fatalf("%s - reply not parseable: %v", backendTestPrefix, err)
	}
	if got := resp.Field("getLoginType").String(); got != "GUEST" {
		t.Errorf("%s - getLoginType = %q, want GUEST", backendTestPrefix, got)
	}
	if resp.Has(envelope.KeyResultAPI) {
		t.Errorf("%s - sync getter reply should not carry resultAPI", backendTestPrefix)
	}
}

func TestSend_AsyncCallDeliversLater(t *testing.T) {
	b, ch := newBackend(t)
	h := int64(4)

	reply, err := b.Send(context.Background(), call(t, "AuthV4", "signIn", &h, nil))
	if err != nil {
		t.Fatalf("%s - Send failed: %v", backendTestPrefix, err)
	}
	if len(reply) != 0 {
		t.Errorf("%s - async call returned sync reply %s", backendTestPrefix, reply)
	}

	resp, err := envelope.ParseResponse(waitForReply(t, ch))
	if err != nil {
		t.Fatalf("%s - reply not parseable: %v", backendTestPrefix, err)
	}
	if got, _ := resp.HandleValue(); got != 4 {
		t.Errorf("%s - handler = %d, want 4", backendTestPrefix, got)
	}
	if !resultapi.Decode(resp).IsSuccess() {
		t.Errorf("%s - expected success", backendTestPrefix)
	}
	if resp.Field("playerInfo.did").String() != b.Identity().DID {
		t.Errorf("%s - playerInfo.did mismatch", backendTestPrefix)
	}
}

func TestSend_UnsupportedWithHandleIsAsync(t *testing.T) {
	b, ch := newBackend(t)
	h := int64(9)

	reply, err := b.Send(context.Background(), call(t, "Promotion", "doesNotExist", &h, nil))
	if err != nil || len(reply) != 0 {
		t.Fatalf("%s - Send = %q, %v", backendTestPrefix, reply, err)
	}

	resp, _ := envelope.ParseResponse(waitForReply(t, ch))
	if api := resultapi.Decode(resp); api.ErrorCode != resultapi.NotSupported {
		t.Errorf("%s - ErrorCode = %s, want NOT_SUPPORTED", backendTestPrefix, api.ErrorCode)
	}
}

func TestSend_UnsupportedQueryIsSync(t *testing.T) {
	b, _ := newBackend(t)

	reply, err := b.Send(context.Background(), call(t, "IAPV4", "getSelectedMarket", nil, nil))
	if err != nil {
		t.Fatalf("%s - Send failed: %v", backendTestPrefix, err)
	}
	resp, err := envelope.ParseResponse(reply)
	if err != nil {
		t.Fatalf("%s - reply not parseable: %v", backendTestPrefix, err)
	}
	api := resultapi.Decode(resp)
	if api.ErrorCode != resultapi.NotSupported {
		t.Errorf("%s - ErrorCode = %s, want NOT_SUPPORTED", backendTestPrefix, api.ErrorCode)
	}
	if want := resultapi.NotSupportedFor("IAPV4", "getSelectedMarket").Message; api.Message != want {
		t.Errorf("%s - Message = %q, want %q", backendTestPrefix, api.Message, want)
	}
}

func TestSend_UnsupportedMessageFromProfile(t *testing.T) {
	p := MergeProfiles(DefaultProfile(), &Profile{UnsupportedMessage: "Not supported function in simulation"})
	b := New(p)
	defer b.Close()

	reply, err := b.Send(context.Background(), call(t, "Push", "getRemotePush", nil, nil))
	if err != nil {
		t.Fatalf("%s - Send failed: %v", backendTestPrefix, err)
	}
	resp, err := envelope.ParseResponse(reply)
	if err != nil {
		t.Fatalf("%s - reply not parseable: %v", backendTestPrefix, err)
	}
	api := resultapi.Decode(resp)
	if api.ErrorCode != resultapi.NotSupported || api.Message != "Not supported function in simulation" {
		t.Errorf("%s - result = %+v, want NOT_SUPPORTED with the profile message", backendTestPrefix, api)
	}
}

func TestSend_BadRequest(t *testing.T) {
	b, _ := newBackend(t)

	for _, req := range []string{`{`, `{"class":"Auth"}`, `{"method":"login"}`} {
		if _, err := b.Send(context.Background(), []byte(req)); !errors.Is(err, ErrBadRequest) {
			t.Errorf("%s - Send(%s) error = %v, want ErrBadRequest", backendTestPrefix, req, err)
		}
	}
}

func TestSend_AfterClose(t *testing.T) {
	b := New(nil)
	b.Close()
	if _, err := b.Send(context.Background(), call(t, "Auth", "getLoginType", nil, nil)); !errors.Is(err, native.ErrClosed) {
		t.Errorf("%s - expected ErrClosed, got %v", backendTestPrefix, err)
	}
}

func TestSupports_DefaultAllowList(t *testing.T) {
	b := New(nil)
	tests := []struct {
		module, op string
		want       bool
	}{
		{"Auth", "initialize", true},
		{"Auth", "getAccount", true},
		{"AuthV4", "setup", true},
		{"AuthV4", "getPlayerInfo", true},
		{"Configuration", "getHiveSDKVersion", true},
		{"AuthV4", "signOut", false},
		{"Promotion", "showPromotion", false},
	}
	for _, tt := range tests {
		if got := b.Supports(tt.module, tt.op); got != tt.want {
			t.Errorf("%s - Supports(%s, %s) = %v, want %v", backendTestPrefix, tt.module, tt.op, got, tt.want)
		}
	}
}

func TestEmit_DeliversUnsolicitedReply(t *testing.T) {
	b, ch := newBackend(t)

	if err := b.Emit("AuthV4", "setProviderChangedListener", map[string]interface{}{
		"providerInfo": map[string]interface{}{"providerType": "GOOGLE"},
	}); err != nil {
		t.Fatalf("%s - Emit failed: %v", backendTestPrefix, err)
	}

	resp, _ := envelope.ParseResponse(waitForReply(t, ch))
	if resp.Operation != "setProviderChangedListener" {
		t.Errorf("%s - operation = %q", backendTestPrefix, resp.Operation)
	}
	if _, ok := resp.HandleValue(); ok {
		t.Errorf("%s - unsolicited reply should carry no handler", backendTestPrefix)
	}
}

// An unsupported operation still consumes its registered handle and hands the
// continuation a NOT_SUPPORTED result.
func TestUnsupportedOperationConsumesHandle(t *testing.T) {
	reg := correlation.New()
	queue := executor.NewQueue()
	disp := dispatcher.New(reg, queue)
	disp.Mount(dispatcher.NewTable("Promotion"))

	b := New(nil)
	defer b.Close()
	delivered := make(chan dispatcher.Outcome, 1)
	b.SetDeliver(func(reply []byte) { delivered <- disp.Deliver(reply) })

	var got resultapi.API
	invoked := 0
	h := int64(reg.Register(correlation.Typed(resultapi.Decode, func(api resultapi.API) {
		invoked++
		got = api
	})))

	if _, err := b.Send(context.Background(), call(t, "Promotion", "doesNotExist", &h, nil)); err != nil {
		t.Fatalf("%s - Send failed: %v", backendTestPrefix, err)
	}

	select {
	case outcome := <-delivered:
		if outcome != dispatcher.OutcomeQueued {
			t.Fatalf("%s - outcome = %s, want queued", backendTestPrefix, outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for delivery", backendTestPrefix)
	}

	queue.Drain()
	if invoked != 1 {
		t.Fatalf("%s - invoked %d times, want 1", backendTestPrefix, invoked)
	}
	if got.ErrorCode != resultapi.NotSupported {
		t.Errorf("%s - ErrorCode = %s, want NOT_SUPPORTED", backendTestPrefix, got.ErrorCode)
	}
	if st := reg.Outstanding(); st.Total() != 0 {
		t.Errorf("%s - registry still holds %d entries", backendTestPrefix, st.Total())
	}
}

func TestSend_ProfileWithoutCannedReply(t *testing.T) {
	p := MergeProfiles(DefaultProfile(), &Profile{Supported: map[string][]string{"Social": {"getFriends"}}})
	b := New(p)
	defer b.Close()
	ch := make(chan []byte, 1)
	b.SetDeliver(func(r []byte) { ch <- r })

	h := int64(1)
	if _, err := b.Send(context.Background(), call(t, "Social", "getFriends", &h, nil)); err != nil {
		t.Fatalf("%s - Send failed: %v", backendTestPrefix, err)
	}
	resp, _ := envelope.ParseResponse(waitForReply(t, ch))
	if !resultapi.Decode(resp).IsSuccess() {
		t.Errorf("%s - expected success reply", backendTestPrefix)
	}
	if b.Supports("Auth", "login") {
		t.Errorf("%s - allow-list should be replaced by the profile", backendTestPrefix)
	}
}
