package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"429", &HTTPStatusError{StatusCode: 429}, true},
		{"503", fmt.Errorf("call: %w", &HTTPStatusError{StatusCode: 503}), true},
		{"400", &HTTPStatusError{StatusCode: 400}, false},
		{"net", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"marked", Retryable(errors.New("flaky")), true},
		{"page index", fmt.Errorf("%w: 9", ErrPageIndex), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestPageError(t *testing.T) {
	pe := NewPageError(ErrExtraction, 3, errors.New("bad json"))
	pe.Attempts = 2
	assert.Equal(t, "page 3: structured extraction failed after 2 attempt(s): bad json", pe.Error())
	assert.ErrorIs(t, pe, ErrExtraction)

	var target *PageError
	assert.ErrorAs(t, fmt.Errorf("run: %w", pe), &target)
	assert.Equal(t, 3, target.Page)
}

func TestGRPCError(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{NewAppError("X", "bad", ErrInvalidInput), codes.InvalidArgument},
		{ErrUnsupportedDocument, codes.InvalidArgument},
		{fmt.Errorf("run r: %w", ErrNotFound), codes.NotFound},
		{ErrNoUsablePages, codes.FailedPrecondition},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(GRPCError(tt.err)), "%v", tt.err)
	}
	assert.NoError(t, GRPCError(nil))
}

func TestParseNumber(t *testing.T) {
	tests := map[string]struct {
		want float64
		ok   bool
	}{
		"1,234.5":  {1234.5, true},
		" 12.5 ft": {12.5, true},
		"+3":       {3, true},
		"45.2°":    {45.2, true},
		"-0.75":    {-0.75, true},
		"":         {0, false},
		"N/A":      {0, false},
	}
	for in, tt := range tests {
		got, ok := ParseNumber(in)
		assert.Equal(t, tt.ok, ok, in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, in)
		}
	}
}

func TestValidatorRules(t *testing.T) {
	v := NewValidator().
		Field("inc", "95.5", Range(0, 90)).
		Field("azi", 360.0, RangeOpen(0, 360)).
		Field("md", "abc", Numeric).
		Field("tvd", nil, Numeric, Range(0, 1)).
		Field("uwi", "unknown", WellIdentifier)

	assert.Len(t, v.Errors(), 4)
	assert.ErrorIs(t, v.Error(), ErrInvalidInput)
	assert.Nil(t, NewValidator().Field("uwi", "42-123-45678", WellIdentifier).Error())
}
