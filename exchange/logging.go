package exchange

import (
	"context"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/go-kit/log"
	"github.com/holiman/uint256"
)

// loggingService decorates an exchange.Service with logging
type loggingService struct {
	logger log.Logger
	next   Service
}

// NewLoggingService returns a new instance of a logging Service
func NewLoggingService(logger log.Logger, s Service) Service {
	return &loggingService{
		next:   s,
		logger: logger,
	}
}

func (s *loggingService) FetchPrice(ctx context.Context) (price *uint256.Int, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "fetch_price",
			"price", dec(price),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.FetchPrice(ctx)
}

func (s *loggingService) Mint(ctx context.Context, account pythusd.Address, value, minTokens *uint256.Int) (rcpt pythusd.Receipt, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "mint",
			"account", account,
			"value", dec(value),
			"min_tokens", dec(minTokens),
			"tokens", dec(rcpt.Tokens),
			"price", dec(rcpt.Price),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Mint(ctx, account, value, minTokens)
}

func (s *loggingService) Burn(ctx context.Context, account pythusd.Address, amount *uint256.Int) (rcpt pythusd.Receipt, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "burn",
			"account", account,
			"tokens", dec(amount),
			"value", dec(rcpt.Value),
			"price", dec(rcpt.Price),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Burn(ctx, account, amount)
}

func (s *loggingService) Info(ctx context.Context) (info pythusd.SystemInfo, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "info",
			"reserve", dec(info.Reserve),
			"total_supply", dec(info.TotalSupply),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Info(ctx)
}

// dec renders a possibly nil amount for logging.
func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
