// Package oracle provides price sources for the exchange engine. A Service
// returns one signed fixed-point sample per read; adapters normalize whatever
// scale the upstream feed uses to the 8-decimal scale the engine expects.
package oracle

import (
	"context"
	"fmt"
	"math"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
)

// Service reads the current price from a price source.
// Implementations must be safe for concurrent use.
type Service interface {
	Price(ctx context.Context) (pythusd.PriceData, error)
}

// staticService serves a fixed price. Useful for local development and as a
// deterministic source in tests.
type staticService struct {
	data pythusd.PriceData
}

// NewStaticService returns a Service that always serves data. A zero
// PublishTime is stamped with the read time so the sample always looks fresh.
func NewStaticService(data pythusd.PriceData) Service {
	return &staticService{data: data}
}

func (s *staticService) Price(_ context.Context) (pythusd.PriceData, error) {
	d := s.data
	if d.PublishTime.IsZero() {
		d.PublishTime = time.Now()
	}
	return d, nil
}

// maxExpoShift bounds how far a feed exponent may deviate from the target
// scale before normalization refuses it outright.
const maxExpoShift = 18

// normalize rescales a raw feed sample to the 8-decimal fixed-point scale.
// The sign of the price is preserved; rejecting non-positive prices is the
// engine's job, not the adapter's. Down-scaling truncates toward zero.
func normalize(price int64, conf uint64, expo int32, publishTime int64) (pythusd.PriceData, error) {
	shift := expo + pythusd.PriceDecimals
	if shift > maxExpoShift || shift < -maxExpoShift {
		return pythusd.PriceData{}, fmt.Errorf("feed exponent %d out of range", expo)
	}

	switch {
	case shift > 0:
		f := pow10(shift)
		if price > math.MaxInt64/f || price < math.MinInt64/f {
			return pythusd.PriceData{}, fmt.Errorf("price %d at exponent %d overflows", price, expo)
		}
		price *= f
		if conf > math.MaxUint64/uint64(f) {
			return pythusd.PriceData{}, fmt.Errorf("confidence %d at exponent %d overflows", conf, expo)
		}
		conf *= uint64(f)
	case shift < 0:
		f := pow10(-shift)
		price /= f
		conf /= uint64(f)
	}

	return pythusd.PriceData{
		Price:       price,
		Conf:        conf,
		Expo:        -pythusd.PriceDecimals,
		PublishTime: time.Unix(publishTime, 0).UTC(),
	}, nil
}

func pow10(n int32) int64 {
	f := int64(1)
	for i := int32(0); i < n; i++ {
		f *= 10
	}
	return f
}
