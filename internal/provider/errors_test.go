package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		err    error
		want   Kind
	}{
		{"payment required", 402, `{"detail":"nope"}`, nil, BillingBlocked},
		{"billing keyword on 403", 403, `{"detail":"Insufficient credits on account"}`, nil, BillingBlocked},
		{"billing keyword on 400", 400, "billing account disabled", nil, BillingBlocked},
		{"rate limited", 429, "slow down", nil, Transient},
		{"request timeout", 408, "", nil, Transient},
		{"server error", 500, "oops", nil, Transient},
		{"bad gateway", 502, "", nil, Transient},
		{"bad request", 400, `{"error":"bad prompt"}`, nil, Fatal},
		{"not found", 404, "", nil, Fatal},
		{"deadline", 0, "", context.DeadlineExceeded, Transient},
		{"wrapped deadline", 0, "", fmt.Errorf("do: %w", context.DeadlineExceeded), Transient},
		{"canceled", 0, "", context.Canceled, Fatal},
		{"net op error", 0, "", &net.OpError{Op: "dial", Err: errors.New("refused")}, Transient},
		{"connection reset", 0, "", errors.New("read: connection reset by peer"), Transient},
		{"unknown transport", 0, "", errors.New("tls: bad certificate"), Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, []byte(tt.body), tt.err)
			if got.Kind != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got.Kind, got)
			}
			if got.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got.StatusCode)
			}
		})
	}
}

func TestClassify_PreservesCause(t *testing.T) {
	err := Classify(0, nil, fmt.Errorf("wrap: %w", context.Canceled))
	if !errors.Is(err, context.Canceled) {
		t.Error("expected classified error to unwrap to context.Canceled")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(fmt.Errorf("outer: %w", &Error{Kind: BillingBlocked})) != BillingBlocked {
		t.Error("expected wrapped kind to be found")
	}
	if KindOf(errors.New("plain")) != Fatal {
		t.Error("expected plain errors to be Fatal")
	}
}
