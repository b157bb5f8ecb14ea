package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataFor(t *testing.T) {
	meta := MetadataFor(CodeInsufficientStock)
	if meta.HTTPStatus != http.StatusConflict {
		t.Fatalf("unexpected status: %d", meta.HTTPStatus)
	}
	if !meta.DetailsAllowed {
		t.Fatal("stock errors should surface details")
	}

	sig := MetadataFor(CodeInvalidSignature)
	if sig.DetailsAllowed {
		t.Fatal("signature errors must not leak details")
	}
	if sig.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", sig.HTTPStatus)
	}

	unknown := MetadataFor(Code("SOMETHING_ELSE"))
	if unknown.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should fall back to internal, got %d", unknown.HTTPStatus)
	}
}

func TestWrapAndAs(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeDependency, cause, "saving order")

	typed := As(fmt.Errorf("outer: %w", err))
	if typed == nil {
		t.Fatal("expected typed error through the chain")
	}
	if typed.Code() != CodeDependency {
		t.Fatalf("unexpected code: %s", typed.Code())
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("cause should unwrap")
	}
}

func TestInsufficientStock(t *testing.T) {
	err := InsufficientStock(42, 5, 2)
	if err.Code() != CodeInsufficientStock {
		t.Fatalf("unexpected code: %s", err.Code())
	}
	details, ok := err.Details().(map[string]any)
	if !ok {
		t.Fatalf("unexpected details type: %T", err.Details())
	}
	if details["product_id"] != int64(42) || details["requested"] != 5 || details["available"] != 2 {
		t.Fatalf("unexpected details: %v", details)
	}
}

func TestNilReceivers(t *testing.T) {
	var err *Error
	if err.Code() != CodeInternal {
		t.Fatal("nil error should report internal code")
	}
	if err.Error() != "" || err.Message() != "" || err.Details() != nil {
		t.Fatal("nil error accessors should be zero values")
	}
}
