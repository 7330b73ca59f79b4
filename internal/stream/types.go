package stream

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrSilence       = errors.New("message silence timeout")
	ErrAuthTimeout   = errors.New("authentication timeout")
	ErrAuthRejected  = errors.New("authentication rejected")
	ErrAlreadyClosed = errors.New("already closed")
)

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the websocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Frame type discriminators used by the streaming provider. Every inbound
// message is a JSON array of frames, each carrying "T".
const (
	frameSuccess      = "success"
	frameError        = "error"
	frameSubscription = "subscription"
	frameTrade        = "t"
	frameQuote        = "q"
	frameBar          = "b"
)

// wireFrame is the envelope shared by all inbound frame types. Only the
// fields relevant to the frame's type are populated.
type wireFrame struct {
	Type    string  `json:"T"`
	Msg     string  `json:"msg,omitempty"`  // success/error text
	Code    int     `json:"code,omitempty"` // error frames only
	Symbol  string  `json:"S,omitempty"`
	Price   float64 `json:"p,omitempty"` // trade price
	Size    float64 `json:"s,omitempty"` // trade size
	BidPx   float64 `json:"bp,omitempty"`
	AskPx   float64 `json:"ap,omitempty"`
	Open    float64 `json:"o,omitempty"`
	High    float64 `json:"h,omitempty"`
	Low     float64 `json:"l,omitempty"`
	Close   float64 `json:"c,omitempty"`
	Volume  float64 `json:"v,omitempty"`
	TimeRaw string  `json:"t,omitempty"` // RFC3339 event timestamp
}

// Provider error codes. Codes are logged verbatim; auth-class codes also
// mark the attempt as an authentication failure.
const (
	codeInvalidRequest = 400
	codeUnauthorized   = 401
	codeAuthFailed     = 402
	codeForbidden      = 403
	codeAuthTimeout    = 404
	codeUnknownSymbol  = 405
	codeConnLimit      = 406
	codeDuplicateConn  = 408
	codeInternalError  = 500
)

func isAuthErrorCode(code int) bool {
	switch code {
	case codeUnauthorized, codeAuthFailed, codeAuthTimeout, codeForbidden:
		return true
	}
	return false
}

// authRequest is the outbound authentication frame.
type authRequest struct {
	Action string `json:"action"` // "auth"
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// subscribeRequest is the outbound subscribe/unsubscribe frame. The same
// shape serves both actions.
type subscribeRequest struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Trades []string `json:"trades,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
	Bars   []string `json:"bars,omitempty"`
}

func marshalFrames(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}

// ConnConfig configures a low-level websocket connection.
type ConnConfig struct {
	URL          string
	WriteTimeout time.Duration
	BufferSize   int
}

// Health is a point-in-time snapshot of the client's internal counters.
type Health struct {
	Connected           bool      `json:"connected"`
	Authenticated       bool      `json:"authenticated"`
	LastMessageAt       time.Time `json:"last_message_at"`
	MessagesPerMinute   float64   `json:"messages_per_minute"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Reconnects          int64     `json:"reconnects"`
	ParseErrors         int64     `json:"parse_errors"`
	SubscribedSymbols   int       `json:"subscribed_symbols"`
}
