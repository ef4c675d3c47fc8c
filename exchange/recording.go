package exchange

import (
	"context"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/holiman/uint256"
)

// Recorder receives the receipt of every committed mint and burn. The
// journal writer satisfies it; recording must not block the caller beyond a
// buffer append.
type Recorder interface {
	Record(ctx context.Context, receipt pythusd.Receipt)
}

// recordingService decorates an exchange.Service so committed operations
// reach a Recorder. Failed operations are not recorded.
type recordingService struct {
	recorder Recorder
	next     Service
}

// NewRecordingService returns a Service forwarding receipts to rec.
func NewRecordingService(rec Recorder, s Service) Service {
	return &recordingService{
		recorder: rec,
		next:     s,
	}
}

func (s *recordingService) FetchPrice(ctx context.Context) (*uint256.Int, error) {
	return s.next.FetchPrice(ctx)
}

func (s *recordingService) Mint(ctx context.Context, account pythusd.Address, value, minTokens *uint256.Int) (pythusd.Receipt, error) {
	rcpt, err := s.next.Mint(ctx, account, value, minTokens)
	if err == nil {
		s.recorder.Record(ctx, rcpt)
	}
	return rcpt, err
}

func (s *recordingService) Burn(ctx context.Context, account pythusd.Address, amount *uint256.Int) (pythusd.Receipt, error) {
	rcpt, err := s.next.Burn(ctx, account, amount)
	if err == nil {
		s.recorder.Record(ctx, rcpt)
	}
	return rcpt, err
}

func (s *recordingService) Info(ctx context.Context) (pythusd.SystemInfo, error) {
	return s.next.Info(ctx)
}
