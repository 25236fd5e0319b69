package types

import (
	"encoding/json"
	"testing"
)

func TestPublicKey_JSONRoundTrip(t *testing.T) {
	var pub PublicKey
	for i := range pub {
		pub[i] = byte(i + 1)
	}

	data, err := json.Marshal(pub)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got PublicKey
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got != pub {
		t.Errorf("round trip mismatch: got %s, want %s", got, pub)
	}
}

func TestPublicKey_JSONRejectsWrongLength(t *testing.T) {
	var pub PublicKey
	if err := json.Unmarshal([]byte(`"abcd"`), &pub); err == nil {
		t.Error("expected an error unmarshaling a short public key")
	}
}

func TestPublicKey_JSONEmbedsAsHexString(t *testing.T) {
	var pub PublicKey
	pub[0] = 0xab

	data, err := json.Marshal(pub)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("expected the public key to marshal as a plain JSON string: %v", err)
	}
	if s != pub.String() {
		t.Errorf("marshaled string = %q, want %q", s, pub.String())
	}
}

func TestSignature_JSONRoundTrip(t *testing.T) {
	var sig Signature
	for i := range sig {
		sig[i] = byte(i * 3)
	}

	data, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got Signature
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got != sig {
		t.Errorf("round trip mismatch: got %s, want %s", got, sig)
	}
}

func TestSignature_JSONRejectsGarbage(t *testing.T) {
	var sig Signature
	if err := json.Unmarshal([]byte(`"not hex!!"`), &sig); err == nil {
		t.Error("expected an error unmarshaling non-hex data")
	}
}

// Transaction embeds both PublicKey and Signature fields; this checks
// they survive a full struct round trip, not just in isolation.
func TestTransaction_JSONRoundTrip(t *testing.T) {
	from := PublicKey{0x01}
	to := PublicKey{0x02}
	tx := NewCredit(from, to, 42, 7)
	tx.Signature = Signature{0x03}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got Transaction
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.From != tx.From || got.To != tx.To || got.Signature != tx.Signature || got.Amount != tx.Amount || got.Nonce != tx.Nonce {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, tx)
	}
}
