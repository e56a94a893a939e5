// Package resultapi models the status object attached to every native reply.
package resultapi

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/morezero/sdk-bridge/pkg/envelope"
)

// ErrorCode is the coarse result category.
type ErrorCode int

const (
	Success                 ErrorCode = 0
	NotOwned                ErrorCode = 10
	ItemDeliveryDelayed     ErrorCode = 11
	ItemPending             ErrorCode = 12
	Authorized              ErrorCode = 20
	IAPSuccess              ErrorCode = 90
	InvalidParam            ErrorCode = -1
	NotSupported            ErrorCode = -2
	InProgress              ErrorCode = -3
	Timeout                 ErrorCode = -4
	Network                 ErrorCode = -5
	Canceled                ErrorCode = -6
	NeedInitialize          ErrorCode = -7
	ResponseFail            ErrorCode = -8
	InvalidSession          ErrorCode = -9
	NeedRestore             ErrorCode = -10
	ConflictPlayer          ErrorCode = -11
	Blacklist               ErrorCode = -12
	DeveloperError          ErrorCode = -13
	DuplicatedPromotionCode ErrorCode = -14
	PlayerChange            ErrorCode = -15
	UserOut                 ErrorCode = -16
	NeedExit                ErrorCode = -17
	Undefined               ErrorCode = -98
	Unknown                 ErrorCode = -99
)

var errorCodeNames = map[ErrorCode]string{
	Success:                 "SUCCESS",
	NotOwned:                "NOT_OWNED",
	ItemDeliveryDelayed:     "ITEM_DELIVERY_DELAYED",
	ItemPending:             "ITEM_PENDING",
	Authorized:              "AUTHORIZED",
	IAPSuccess:              "IAPSUCCESS",
	InvalidParam:            "INVALID_PARAM",
	NotSupported:            "NOT_SUPPORTED",
	InProgress:              "IN_PROGRESS",
	Timeout:                 "TIMEOUT",
	Network:                 "NETWORK",
	Canceled:                "CANCELED",
	NeedInitialize:          "NEED_INITIALIZE",
	ResponseFail:            "RESPONSE_FAIL",
	InvalidSession:          "INVALID_SESSION",
	NeedRestore:             "NEED_RESTORE",
	ConflictPlayer:          "CONFLICT_PLAYER",
	Blacklist:               "BLACKLIST",
	DeveloperError:          "DEVELOPER_ERROR",
	DuplicatedPromotionCode: "DUPLICATED_PROMOTION_CODE",
	PlayerChange:            "PLAYER_CHANGE",
	UserOut:                 "USER_OUT",
	NeedExit:                "NEED_EXIT",
	Undefined:               "UNDEFINED",
	Unknown:                 "UNKNOWN",
}

// Known reports whether c is a defined error code.
func (c ErrorCode) Known() bool {
	_, ok := errorCodeNames[c]
	return ok
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Code is the detailed native result code. The native side defines many
// module-specific values; only the common ones are named here.
type Code int

const (
	CodeSuccess       Code = 0
	CodeCommonUnknown Code = -999
)

// API is the result status of one reply.
type API struct {
	ErrorCode    ErrorCode `json:"errorCode"`
	Code         Code      `json:"code"`
	ErrorMessage string    `json:"errorMessage"`
	Message      string    `json:"message"`
	LatencyMs    int64     `json:"latencyMs"`
}

// OK returns a successful result.
func OK() API {
	return API{ErrorCode: Success, Code: CodeSuccess, ErrorMessage: "SUCCESS", Message: "SUCCESS"}
}

// New returns a result with the given error code and message.
func New(code ErrorCode, message string) API {
	if !code.Known() {
		code = Unknown
	}
	c := CodeSuccess
	if code < Success {
		c = CodeCommonUnknown
	}
	return API{ErrorCode: code, Code: c, ErrorMessage: message, Message: message}
}

// NotSupportedFor is the result synthesized for operations the native side
// does not implement.
func NotSupportedFor(module, operation string) API {
	return New(NotSupported, fmt.Sprintf("%s.%s is not supported on this platform", module, operation))
}

// ResponseFailed is the result synthesized when the transport failed to deliver a call.
func ResponseFailed(err error) API {
	msg := "response fail"
	if err != nil {
		msg = err.Error()
	}
	return New(ResponseFail, msg)
}

// IsSuccess reports whether the call succeeded. Positive codes such as
// AUTHORIZED or ITEM_PENDING count as success.
func (a API) IsSuccess() bool {
	return a.ErrorCode >= Success || a.Code >= CodeSuccess
}

// NeedsExit reports whether the native side asked the application to exit.
func (a API) NeedsExit() bool {
	return a.ErrorCode == NeedExit
}

func (a API) String() string {
	if a.LatencyMs != 0 {
		return fmt.Sprintf("ResultAPI { errorCode = %s, code = %d, msg = %s, latencyMs = %d }", a.ErrorCode, a.Code, a.ErrorMessage, a.LatencyMs)
	}
	return fmt.Sprintf("ResultAPI { errorCode = %s, code = %d, msg = %s }", a.ErrorCode, a.Code, a.ErrorMessage)
}

// Parse reads a resultAPI object. Absent fields keep their success defaults;
// undefined error codes map to UNKNOWN.
func Parse(obj gjson.Result) API {
	api := OK()
	if !obj.IsObject() {
		return missing()
	}
	if v := obj.Get("errorCode"); v.Exists() {
		api.ErrorCode = ErrorCode(v.Int())
		if !api.ErrorCode.Known() {
			api.ErrorCode = Unknown
		}
	}
	if v := obj.Get("code"); v.Exists() {
		api.Code = Code(v.Int())
	}
	if v := obj.Get("errorMessage"); v.Exists() {
		api.ErrorMessage = v.String()
	}
	if v := obj.Get("message"); v.Exists() {
		api.Message = v.String()
	}
	if v := obj.Get("latencyMs"); v.Exists() {
		api.LatencyMs = v.Int()
	}
	return api
}

// Decode reads the resultAPI field of a reply.
func Decode(resp *envelope.Response) API {
	return Parse(resp.Field(envelope.KeyResultAPI))
}

func missing() API {
	return API{ErrorCode: Unknown, Code: CodeCommonUnknown, ErrorMessage: "missing resultAPI", Message: "missing resultAPI"}
}
