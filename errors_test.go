package taxlot

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{errors.New("boom"), KindNone},
		{ErrValidation, KindValidation},
		{fmt.Errorf("record 3: %w", ErrDuplicate), KindDuplicate},
		{fmt.Errorf("%w: BTC", ErrPriceUnavailable), KindPriceUnavailable},
		{fmt.Errorf("wrapped twice: %w", fmt.Errorf("%w: ETH", ErrInsufficientInventory)), KindInsufficientInventory},
		{errors.Join(errors.New("http 503"), ErrExternalSource), KindExternalSource},
		{ErrConfiguration, KindConfiguration},
		{ErrPersistence, KindPersistence},
	}
	for _, tc := range testCases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestResult(t *testing.T) {
	ok := Succeed(1, nil, "done")
	if ok.Status != StatusSuccess || !ok.OK() || ok.Kind != KindNone {
		t.Errorf("Succeed() = %+v, want success", ok)
	}
	partial := Succeed(1, []Problem{{Kind: KindPriceUnavailable, Ref: "x"}}, "done")
	if partial.Status != StatusPartial || !partial.OK() || partial.Kind != KindPriceUnavailable {
		t.Errorf("Succeed(problems) = %+v, want partial", partial)
	}
	failed := Fail[int](fmt.Errorf("%w: disk full", ErrPersistence))
	if failed.Status != StatusFailure || failed.OK() || failed.Kind != KindPersistence {
		t.Errorf("Fail() = %+v, want persistence failure", failed)
	}
	if got := Fail[int](errors.New("unknown")).Kind; got != KindPersistence {
		t.Errorf("Fail(unknown).Kind = %v, want persistence", got)
	}
}

func TestResult_JSON(t *testing.T) {
	b, err := json.Marshal(Succeed("x", []Problem{{Kind: KindValidation, Ref: "record 2", Message: "zero amount"}}, "imported"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"status":"partial","message":"imported","kind":"validation","data":"x","problems":[{"kind":"validation","ref":"record 2","message":"zero amount"}]}`
	if string(b) != want {
		t.Errorf("json.Marshal(Result) = %s, want %s", b, want)
	}
}
