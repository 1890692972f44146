package permission

import "testing"

func TestMaskHasWithWithout(t *testing.T) {
	var mask Mask
	if mask.Has(CapCreateEvents) {
		t.Fatalf("zero mask must grant nothing")
	}

	mask = mask.With(CapCreateEvents).With(CapUploadFiles)
	if !mask.Has(CapCreateEvents) || !mask.Has(CapUploadFiles) {
		t.Fatalf("granted bits missing: %b", mask)
	}
	if mask.Has(CapManageUsers) {
		t.Fatalf("ungranted bit present: %b", mask)
	}

	mask = mask.Without(CapCreateEvents)
	if mask.Has(CapCreateEvents) {
		t.Fatalf("revoked bit still present: %b", mask)
	}
	if !mask.Has(CapUploadFiles) {
		t.Fatalf("revocation must not clear other bits: %b", mask)
	}
}

func TestDefaultUserMaskGrantsBaseline(t *testing.T) {
	for _, capability := range []Mask{CapCreateEvents, CapReadOwnEvents, CapReadPublicEvents} {
		if !DefaultUserMask.Has(capability) {
			t.Fatalf("default mask missing capability %b", capability)
		}
	}
	for _, capability := range []Mask{CapManageEvents, CapManageUsers, CapManagePermissions, CapUploadFiles} {
		if DefaultUserMask.Has(capability) {
			t.Fatalf("default mask must not grant %b", capability)
		}
	}
}
