package types

import "testing"

func TestMailingAddressNormalize(t *testing.T) {
	blank := "   "
	addr := MailingAddress{Line1: " 12 Kiln Row ", Line2: &blank, City: " Asheville", State: "NC ", PostalCode: " 28801 "}
	got := addr.Normalize()

	if got.Line1 != "12 Kiln Row" || got.City != "Asheville" || got.State != "NC" || got.PostalCode != "28801" {
		t.Fatalf("unexpected normalized address %+v", got)
	}
	if got.Line2 != nil {
		t.Fatalf("blank line2 should be dropped, got %q", *got.Line2)
	}
	if got.Country != "US" {
		t.Fatalf("expected default country US, got %q", got.Country)
	}
}

func TestMailingAddressScanNil(t *testing.T) {
	addr := MailingAddress{Line1: "x"}
	if err := addr.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if addr.Line1 != "" {
		t.Fatalf("expected zero address after nil scan")
	}
	if err := addr.Scan(42); err == nil {
		t.Fatal("expected error for unsupported scan type")
	}
}

func TestMailingAddressScanBytes(t *testing.T) {
	var addr MailingAddress
	if err := addr.Scan([]byte(`{"line1":"1 Clay St","city":"Asheville","state":"NC","postal_code":"28801","country":"US"}`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if addr.City != "Asheville" || addr.PostalCode != "28801" {
		t.Fatalf("unexpected scanned address %+v", addr)
	}
}
