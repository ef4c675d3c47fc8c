package pythusd

import "errors"

var (
	// ErrInvalidPrice means the price source returned a non-positive value.
	ErrInvalidPrice = errors.New("pythusd: oracle returned non-positive price")

	// ErrSlippageExceeded means a mint computed fewer tokens than the caller's floor.
	ErrSlippageExceeded = errors.New("pythusd: minted tokens below requested minimum")

	// ErrInsufficientBalance means a debit exceeded the holder's balance.
	ErrInsufficientBalance = errors.New("pythusd: insufficient token balance")

	// ErrInsufficientReserve means the native reserve cannot cover a redemption.
	ErrInsufficientReserve = errors.New("pythusd: insufficient native reserve")

	// ErrAmountOverflow means an intermediate or final amount exceeds 256 bits.
	ErrAmountOverflow = errors.New("pythusd: amount arithmetic overflows 256 bits")
)
