package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Mock is an in-process provider.  Every charge succeeds immediately and
// points at a local payment page; settlement happens through the mock
// settle endpoint.
type Mock struct {
	BaseURL string
}

func (Mock) Name() string { return "mock" }

func (m Mock) CreateCharge(_ context.Context, req ChargeRequest) (Charge, error) {
	ref := "MOCK-TOKEN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	base := strings.TrimRight(m.BaseURL, "/")
	return Charge{
		Reference:   ref,
		RedirectURL: base + "/mock-pay/" + req.ExternalRef,
	}, nil
}
