package transport

import "testing"

// TestListInstruments talks to the host USB stack; it only checks that
// enumeration does not fail when no scope is attached.
func TestListInstruments(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping USB enumeration in short mode")
	}
	infos, err := ListInstruments()
	if err != nil {
		t.Skipf("USB not available: %v", err)
	}
	for _, info := range infos {
		if info.VID != VendorIDNewAE {
			t.Errorf("VID = %#04x, want %#04x", info.VID, VendorIDNewAE)
		}
	}
}
