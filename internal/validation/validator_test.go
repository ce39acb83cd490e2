package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	SKU  string `json:"sku" validate:"required,max=64"`
	Qty  int    `json:"qty" validate:"gte=1"`
	Mode string `json:"mode" validate:"omitempty,oneof=like dislike"`
}

func TestStructValid(t *testing.T) {
	require.NoError(t, Struct(&sample{SKU: "a", Qty: 1}))
	require.NoError(t, Struct(&sample{SKU: "a", Qty: 3, Mode: "like"}))
}

func TestStructCollectsFieldErrors(t *testing.T) {
	err := Struct(&sample{Qty: 0, Mode: "love"})
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	require.Len(t, reqErr.Fields, 3)

	require.Equal(t, "sku", reqErr.Fields[0].Field)
	require.Equal(t, "required", reqErr.Fields[0].Tag)
	require.Equal(t, "sku is required", reqErr.Fields[0].Message)
	require.Equal(t, "qty must be greater than or equal to 1", reqErr.Fields[1].Message)
	require.Equal(t, "mode must be one of: like dislike", reqErr.Fields[2].Message)
	require.Contains(t, err.Error(), "sku is required; ")
}

func TestValidatorIsShared(t *testing.T) {
	require.Same(t, Validator(), Validator())
}
