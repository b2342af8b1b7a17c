package ctlogerr

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(Conflict, "sequence already assigned")
	if !Is(err, Conflict) {
		t.Error("Is(err, Conflict) = false, want true")
	}
	if Is(err, Validation) {
		t.Error("Is(err, Validation) = true, want false")
	}
}

func TestIsThroughWrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("contacting peer: %w", Wrap(Transient, "fetch entries", cause))
	if !Is(err, Transient) {
		t.Error("Is through fmt.Errorf wrapping = false, want true")
	}
}

func TestGRPCStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		code codes.Code
	}{
		{Validation, codes.InvalidArgument},
		{Conflict, codes.AlreadyExists},
		{Transient, codes.Unavailable},
		{Fatal, codes.Internal},
	}
	for _, c := range cases {
		err := New(c.kind, "boom")
		st, ok := status.FromError(err)
		if !ok {
			t.Errorf("status.FromError(%v) not ok", err)
			continue
		}
		if st.Code() != c.code {
			t.Errorf("kind %v: grpc code = %v, want %v", c.kind, st.Code(), c.code)
		}
	}
}
