package utils_test

import (
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/easybudget/billing_backend/utils"
	"gorm.io/gorm"
)

func TestReplaceNotFound(t *testing.T) {
	if got := utils.ReplaceNotFound(gorm.ErrRecordNotFound); !errors.Is(got, utils.ErrorRecordNotFound) {
		t.Errorf("gorm not-found = %v, want the recoverable sentinel", got)
	}
	wrapped := fmt.Errorf("lookup invoice: %w", gorm.ErrRecordNotFound)
	if got := utils.ReplaceNotFound(wrapped); !errors.Is(got, utils.ErrorRecordNotFound) {
		t.Errorf("wrapped not-found = %v, want the recoverable sentinel", got)
	}

	// A store failure acknowledged as not-found would drop the delivery, so
	// anything that is not gorm's not-found must pass through untouched.
	transient := errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")
	if got := utils.ReplaceNotFound(transient); got != transient {
		t.Errorf("transient error = %v, want it unchanged", got)
	}
	if errors.Is(utils.ReplaceNotFound(transient), utils.ErrorRecordNotFound) {
		t.Error("transient error must not become the recoverable sentinel")
	}

	if got := utils.ReplaceNotFound(nil); got != nil {
		t.Errorf("nil error = %v, want nil", got)
	}
}
