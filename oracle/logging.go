package oracle

import (
	"context"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/go-kit/log"
)

// loggingService decorates an oracle.Service with logging
type loggingService struct {
	next   Service
	logger log.Logger
}

// NewLoggingService returns a new logging Service
func NewLoggingService(logger log.Logger, s Service) Service {
	return &loggingService{
		next:   s,
		logger: logger,
	}
}

func (s *loggingService) Price(ctx context.Context) (data pythusd.PriceData, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "price",
			"price", data.Price,
			"conf", data.Conf,
			"publish_time", data.PublishTime,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Price(ctx)
}
