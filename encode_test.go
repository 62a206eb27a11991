package taxlot

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecodeRecords(t *testing.T) {
	const jsonl = `{"key":"a","time":"2025-05-01T10:00:00Z","type":"buy","asset":"BTC","amount":0.5,"price":"40000"}

{"key":"b","time":"2025-05-02T10:00:00Z","type":"swap","asset":"ETH","amount":"1","secondaryAsset":"BTC","secondaryAmount":0.05}
`
	records, err := DecodeRecords(strings.NewReader(jsonl))
	if err != nil {
		t.Fatalf("DecodeRecords() unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("DecodeRecords() = %d records, want 2", len(records))
	}
	if records[0].Amount != "0.5" || records[0].Price != "40000" {
		t.Errorf("DecodeRecords()[0] = %+v", records[0])
	}
	if records[1].SecondaryAmount != "0.05" {
		t.Errorf("DecodeRecords()[1].SecondaryAmount = %q, want 0.05", records[1].SecondaryAmount)
	}

	_, err = DecodeRecords(strings.NewReader("{\"key\":\"a\"}\n{oops\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("DecodeRecords(bad) error = %v, want line 2", err)
	}
}

func TestEncodeTransactions(t *testing.T) {
	tx := Transaction{ID: "a", Seq: 1, Time: mustTime("2025-05-01T10:00:00Z"), Class: RewardIncome, Reward: Staking, Asset: "SOL", Amount: mustQ("2.5"), Provenance: "wallet"}
	var buf bytes.Buffer
	if err := EncodeTransactions(&buf, []Transaction{tx}); err != nil {
		t.Fatal(err)
	}
	want := `{"id":"a","seq":1,"time":"2025-05-01T10:00:00Z","class":"reward-income","reward":"staking","asset":"SOL","amount":2.5,"provenance":"wallet"}` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("EncodeTransactions() = %s, want %s", got, want)
	}
}
