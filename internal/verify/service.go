package verify

import (
	"context"
	"errors"
)

// Verifier is the proof-checking collaborator; *Client satisfies it.
type Verifier interface {
	Verify(ctx context.Context, proof []string) (Result, error)
}

// Pinger reports the mint server's health; *submit.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

type Service struct {
	verifier Verifier
	pinger   Pinger
}

func NewService(verifier Verifier, pinger Pinger) *Service {
	return &Service{verifier: verifier, pinger: pinger}
}

// VerifyCalldata accepts calldata as exported by the proof toolchain, whose
// first element is the length prefix, and verifies the remaining elements.
func (s *Service) VerifyCalldata(ctx context.Context, calldata []string) (VerifyResponse, error) {
	if len(calldata) < 2 {
		return VerifyResponse{}, errors.New("calldata must contain a length prefix and at least one element")
	}

	res, err := s.verifier.Verify(ctx, calldata[1:])
	if err != nil {
		return VerifyResponse{}, err
	}

	out := VerifyResponse{ProofResult: res.Values}
	if s.pinger != nil {
		msg, err := s.pinger.Ping(ctx)
		if err != nil {
			return VerifyResponse{}, err
		}
		out.ServerMessage = msg
	}
	return out, nil
}
