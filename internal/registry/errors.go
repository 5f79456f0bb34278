package registry

import "github.com/alanyoungcy/mevrebels/internal/ledger"

var (
	ErrProfitThresholdTooLow = ledger.NewError(6000, "ProfitThresholdTooLow", ledger.ClassValidation, "profit threshold must be at least 10 bps")
	ErrSlippageTooHigh       = ledger.NewError(6001, "SlippageTooHigh", ledger.ClassValidation, "max slippage must not exceed 500 bps")
	ErrNoDexSpecified        = ledger.NewError(6002, "NoDexSpecified", ledger.ClassValidation, "at least one dex is required")
	ErrNoTokenPairSpecified  = ledger.NewError(6003, "NoTokenPairSpecified", ledger.ClassValidation, "at least one token pair is required")
	ErrInvalidTokenPair      = ledger.NewError(6004, "InvalidTokenPair", ledger.ClassValidation, "token pair must contain two different tokens")
	ErrTooManyDexes          = ledger.NewError(6005, "TooManyDexes", ledger.ClassValidation, "at most 5 dexes are allowed")
	ErrTooManyTokenPairs     = ledger.NewError(6006, "TooManyTokenPairs", ledger.ClassValidation, "at most 3 token pairs are allowed")
	ErrInvalidDexType        = ledger.NewError(6007, "InvalidDexType", ledger.ClassValidation, "unknown dex")
	ErrInvalidStatus         = ledger.NewError(6008, "InvalidStatus", ledger.ClassState, "strategy is not pending")
	ErrStrategyNotApproved   = ledger.NewError(6009, "StrategyNotApproved", ledger.ClassState, "strategy is not approved")
	ErrUnauthorizedApprover  = ledger.NewError(6010, "UnauthorizedApprover", ledger.ClassAuthorization, "caller is not the admin or governance authority")
	ErrUnauthorizedAdmin     = ledger.NewError(6011, "UnauthorizedAdmin", ledger.ClassAuthorization, "caller is not the admin")
	ErrStrategyIDOverflow    = ledger.NewError(6012, "StrategyIdOverflow", ledger.ClassArithmetic, "strategy id counter overflow")
)
