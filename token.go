// Package pythusd holds the domain types shared across the token service:
// account addresses, oracle price samples, token metadata and operation
// receipts. All monetary quantities are unsigned 256-bit integers in base
// units; prices and the exchange rate carry an 8-decimal fixed-point scale.
package pythusd

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// PriceDecimals is the fixed-point scale of oracle prices and of the
// native exchange rate: the true value equals the integer divided by 10^8.
const PriceDecimals = 8

// Address identifies a token holder account.
type Address string

// TokenInfo is the token identity, fixed at construction.
type TokenInfo struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// PriceData is a single oracle sample as delivered by a price source.
// Price is signed exactly as the source reports it; consumers must reject
// non-positive values before use. Conf and PublishTime are metadata the
// engine ignores.
type PriceData struct {
	Price       int64 // 8-decimal fixed point
	Conf        uint64
	Expo        int32 // always -8 once an adapter has normalized the sample
	PublishTime time.Time
}

// Operation names a ledger-mutating exchange operation.
type Operation string

const (
	OpMint Operation = "mint"
	OpBurn Operation = "burn"
)

// Receipt records one committed mint or burn.
type Receipt struct {
	ID      uuid.UUID
	Op      Operation
	Account Address
	Value   *uint256.Int // native base units retained (mint) or released (burn)
	Tokens  *uint256.Int // token base units issued (mint) or redeemed (burn)
	Price   *uint256.Int // oracle price the conversion used, 8-decimal fixed point
	At      time.Time
}

// SystemInfo is a point-in-time snapshot of the token and its backing.
type SystemInfo struct {
	Token       TokenInfo
	Rate        *uint256.Int // native/USD conversion rate, 8-decimal fixed point
	Reserve     *uint256.Int // native base units held against the supply
	TotalSupply *uint256.Int
}
