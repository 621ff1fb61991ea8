package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := RedeemVoucherRequest{
		Wire:      "  OP1:abc.def.ghi\n",
		SenderUID: " U123 ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "OP1:abc.def.ghi", req.Wire)
	assert.Equal(t, "U123", req.SenderUID)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := CreateVoucherRequest{Amount: "1.00", Pin: "1234", Details: "lunch <script>alert('x')</script>"}
	SanitizeStruct(&req)

	assert.Contains(t, req.Details, "&lt;script&gt;")
	assert.NotContains(t, req.Details, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	note := "  hi  "
	req := struct{ Note *string }{Note: &note}
	SanitizeStruct(&req)
	assert.Equal(t, "hi", *req.Note)

	var nilReq struct{ Note *string }
	assert.NotPanics(t, func() { SanitizeStruct(&nilReq) })
}

func TestSanitizeStruct_IgnoresNonPointer(t *testing.T) {
	req := RedeemVoucherRequest{SenderUID: " U1 "}
	SanitizeStruct(req)
	assert.Equal(t, " U1 ", req.SenderUID)
}

func TestCreateVoucherRequest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   CreateVoucherRequest
		valid bool
	}{
		{"valid", CreateVoucherRequest{Amount: "50.00", Pin: "1234"}, true},
		{"zero passes shape check", CreateVoucherRequest{Amount: "0", Pin: "1234"}, true},
		{"three decimals", CreateVoucherRequest{Amount: "1.005", Pin: "1234"}, false},
		{"not a number", CreateVoucherRequest{Amount: "ten", Pin: "1234"}, false},
		{"missing amount", CreateVoucherRequest{Pin: "1234"}, false},
		{"short pin", CreateVoucherRequest{Amount: "1", Pin: "12"}, false},
		{"alpha pin", CreateVoucherRequest{Amount: "1", Pin: "12ab"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRedeemVoucherRequest_Validation(t *testing.T) {
	assert.NoError(t, binding.Validator.ValidateStruct(&RedeemVoucherRequest{Wire: "OP1:a.b.c", SenderUID: "U123"}))
	assert.Error(t, binding.Validator.ValidateStruct(&RedeemVoucherRequest{Wire: "OP1:a.b.c", SenderUID: "U 123"}))
	assert.Error(t, binding.Validator.ValidateStruct(&RedeemVoucherRequest{SenderUID: "U123"}))
}
