// Package poolerr defines the error kinds raised by the settlement core.
// Every error is fatal to the single operation that raised it; no operation
// applies partial ledger effects before failing.
package poolerr

import "fmt"

// Kind classifies an error for callers and metrics labels.
type Kind uint8

const (
	KindConfiguration Kind = iota // unknown/duplicate asset, invalid parameter
	KindAuthorization             // non-broker fill, non-governance config change
	KindTiming                    // lock not elapsed, order expired
	KindLiquidity                 // insufficient spot liquidity, repay exceeds credit
	KindPrice                     // reference deviation, emergency halt
	KindNotFound                  // unknown order
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthorization:
		return "authorization"
	case KindTiming:
		return "timing"
	case KindLiquidity:
		return "liquidity"
	case KindPrice:
		return "price"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a kind-classified sentinel. Wrapped copies produced by Detail
// match their sentinel under errors.Is via the code.
type Error struct {
	kind Kind
	code string
	msg  string
}

func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Code() string { return e.code }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// Detail returns a copy of the sentinel with operation context appended.
func Detail(base *Error, format string, args ...interface{}) *Error {
	return &Error{
		kind: base.kind,
		code: base.code,
		msg:  base.msg + ": " + fmt.Sprintf(format, args...),
	}
}

// KindOf reports the kind of a poolerr error, or KindConfiguration=false
// semantics via the second return for foreign errors.
func KindOf(err error) (Kind, bool) {
	e, ok := err.(*Error)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

var (
	// Configuration
	ErrDuplicateAsset  = New(KindConfiguration, "duplicate_asset", "asset id already registered")
	ErrInvalidDecimals = New(KindConfiguration, "invalid_decimals", "asset decimals exceed platform maximum")
	ErrUnknownAsset    = New(KindConfiguration, "unknown_asset", "asset id not registered")
	ErrInvalidParams   = New(KindConfiguration, "invalid_params", "invalid asset parameters")

	// Authorization
	ErrUnauthorized        = New(KindAuthorization, "unauthorized", "caller lacks required privilege")
	ErrOrderNotCancellable = New(KindAuthorization, "order_not_cancellable", "only the owner may cancel before timeout")

	// Timing
	ErrLockPeriodNotElapsed = New(KindTiming, "lock_period_not_elapsed", "order lock period has not elapsed")
	ErrOrderExpired         = New(KindTiming, "order_expired", "order exceeded maximum timeout")

	// Liquidity
	ErrAssetNotOpenable       = New(KindLiquidity, "asset_not_openable", "asset flags disallow borrowing")
	ErrAssetNotTradable       = New(KindLiquidity, "asset_not_tradable", "asset flags disallow trading")
	ErrAssetDisabled          = New(KindLiquidity, "asset_disabled", "asset is disabled")
	ErrInsufficientLiquidity  = New(KindLiquidity, "insufficient_liquidity", "principal exceeds spot liquidity")
	ErrRepayExceedsCredit     = New(KindLiquidity, "repay_exceeds_credit", "repayment exceeds outstanding credit")
	ErrSlippageExceeded       = New(KindLiquidity, "slippage_exceeded", "fill output below account minimum")
	ErrInsufficientShares     = New(KindLiquidity, "insufficient_shares", "burn amount exceeds share supply")

	// Price
	ErrReferenceOracleDeviation = New(KindPrice, "reference_oracle_deviation", "price deviates from reference beyond bound")
	ErrEmergencyHalt            = New(KindPrice, "emergency_halt", "NAV per share outside emergency bounds")
	ErrInvalidPrice             = New(KindPrice, "invalid_price", "price must be positive")

	// NotFound
	ErrOrderNotFound = New(KindNotFound, "order_not_found", "order already settled, cancelled, or never placed")
)
