package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"crew-registry-system/models"
)

type fakeAllocStore struct {
	ids     []string
	listErr error
}

func (f *fakeAllocStore) ListRows(ctx context.Context) ([]RemoteRow, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	rows := make([]RemoteRow, len(f.ids))
	for i, id := range f.ids {
		rows[i] = RemoteRow{ID: "row-" + id, Values: map[string]interface{}{models.ColIDNumber: id}}
	}
	return rows, nil
}

func (f *fakeAllocStore) CreateRow(ctx context.Context, cells map[string]interface{}) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeAllocStore) QueryRows(ctx context.Context, column, value string) ([]RemoteRow, error) {
	return nil, nil
}
func (f *fakeAllocStore) UpdateRow(ctx context.Context, rowID string, cells map[string]interface{}) error {
	return errors.New("not used")
}
func (f *fakeAllocStore) GetColumns(ctx context.Context) ([]Column, error) {
	return nil, errors.New("not used")
}

var idPattern = regexp.MustCompile(`^[A-Z]+-[A-Z0-9]+-\d{4}$`)

func TestAllocateFormat(t *testing.T) {
	svc := NewIdentifierService(&fakeAllocStore{})

	for _, mt := range []models.MemberType{models.MemberTypeMember, models.MemberTypeAssociate, models.MemberTypeAmbassador} {
		id := svc.Allocate(context.Background(), mt, "", "")
		if !idPattern.MatchString(id) {
			t.Fatalf("Allocate(%s) = %q, want match for %s", mt, id, idPattern)
		}
	}
}

func TestAllocateSequenceIsUnscopedMax(t *testing.T) {
	// The sequence pool is shared across the whole table: the max comes
	// from every record, not just rows matching the new ID's prefix.
	store := &fakeAllocStore{ids: []string{"ND-20-1000", "ND-20-1003", "TC-05-2050"}}
	svc := NewIdentifierService(store)

	id := svc.Allocate(context.Background(), models.MemberTypeMember, "", "")
	want := "ND-20-2051"
	if id != want {
		t.Fatalf("Allocate() = %q, want %q", id, want)
	}
}

func TestAllocateIgnoresMalformedIDs(t *testing.T) {
	store := &fakeAllocStore{ids: []string{"ND-20-1005", "garbage", "ND-20", "ND-20-notanumber", ""}}
	svc := NewIdentifierService(store)

	id := svc.Allocate(context.Background(), models.MemberTypeMember, "", "")
	if id != "ND-20-1006" {
		t.Fatalf("Allocate() = %q, want ND-20-1006", id)
	}
}

func TestAllocateEmptyRegistryUsesFloor(t *testing.T) {
	svc := NewIdentifierService(&fakeAllocStore{})

	id := svc.Allocate(context.Background(), models.MemberTypeMember, "", "")
	if id != "ND-20-1001" {
		t.Fatalf("Allocate() = %q, want ND-20-1001", id)
	}
}

func TestAllocateScanFailureFallsBackToHighRange(t *testing.T) {
	svc := NewIdentifierService(&fakeAllocStore{listErr: errors.New("registry down")})

	id := svc.Allocate(context.Background(), models.MemberTypeMember, "", "")
	parsed, err := Reparse(id)
	if err != nil {
		t.Fatalf("Reparse(%q) failed: %v", id, err)
	}
	if parsed.Sequence < fallbackSeqMin || parsed.Sequence > fallbackSeqMax {
		t.Fatalf("fallback sequence %d outside [%d, %d]", parsed.Sequence, fallbackSeqMin, fallbackSeqMax)
	}
}

func TestAllocateDivisionResolution(t *testing.T) {
	svc := NewIdentifierService(&fakeAllocStore{})

	tests := []struct {
		name      string
		fleetWing string
		division  string
		wantCode  string
	}{
		{"explicit division wins", "Hauler Wing", "Tactical Command", "TC"},
		{"fleet wing maps through its division", "Hauler Wing", "", "LG"},
		{"unknown division falls back", "", "Bogus Division", "ND"},
		{"unknown wing falls back", "Bogus Wing", "", "ND"},
		{"nothing given falls back", "", "", "ND"},
	}
	for _, tt := range tests {
		id := svc.Allocate(context.Background(), models.MemberTypeMember, tt.fleetWing, tt.division)
		parsed, err := Reparse(id)
		if err != nil {
			t.Fatalf("%s: Reparse(%q) failed: %v", tt.name, id, err)
		}
		if parsed.DivisionCode != tt.wantCode {
			t.Fatalf("%s: division code = %q, want %q", tt.name, parsed.DivisionCode, tt.wantCode)
		}
	}
}

func TestAllocateRankCodes(t *testing.T) {
	svc := NewIdentifierService(&fakeAllocStore{})

	tests := []struct {
		mt       models.MemberType
		wantCode string
	}{
		{models.MemberTypeMember, models.RankRecruitCode},
		{models.MemberTypeAssociate, models.RankAssociateCode},
		{models.MemberTypeAmbassador, models.RankAmbassadorCode},
	}
	for _, tt := range tests {
		id := svc.Allocate(context.Background(), tt.mt, "", "")
		parsed, _ := Reparse(id)
		if parsed.RankCode != tt.wantCode {
			t.Fatalf("Allocate(%s) rank code = %q, want %q", tt.mt, parsed.RankCode, tt.wantCode)
		}
	}
}

func TestReparseRoundTrip(t *testing.T) {
	store := &fakeAllocStore{ids: []string{"ND-20-1233"}}
	svc := NewIdentifierService(store)

	id := svc.Allocate(context.Background(), models.MemberTypeAssociate, "", "Medical")
	parsed, err := Reparse(id)
	if err != nil {
		t.Fatalf("Reparse(%q) failed: %v", id, err)
	}
	if parsed.DivisionCode != "MD" || parsed.RankCode != models.RankAssociateCode || parsed.Sequence != 1234 {
		t.Fatalf("Reparse(%q) = %+v, want MD/%s/1234", id, parsed, models.RankAssociateCode)
	}
	if parsed.String() != id {
		t.Fatalf("round trip: %q != %q", parsed.String(), id)
	}
}

func TestReparseRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "ND-20", "ND--1000", "ND-20-12x4", "-20-1000"} {
		if _, err := Reparse(bad); err == nil {
			t.Fatalf("Reparse(%q) succeeded, want error", bad)
		}
	}
}

func TestRebuildForPromotion(t *testing.T) {
	got, err := RebuildForPromotion("ND-20-1042", "Specialist")
	if err != nil {
		t.Fatalf("RebuildForPromotion failed: %v", err)
	}
	if got != "ND-15-1042" {
		t.Fatalf("RebuildForPromotion = %q, want ND-15-1042", got)
	}

	if _, err := RebuildForPromotion("ND-20-1042", "Space Pope"); err == nil {
		t.Fatal("expected error for unknown rank")
	}
}

func TestRebuildForTransfer(t *testing.T) {
	got, err := RebuildForTransfer("ND-20-1042", "Exploration")
	if err != nil {
		t.Fatalf("RebuildForTransfer failed: %v", err)
	}
	if got != "EX-20-1042" {
		t.Fatalf("RebuildForTransfer = %q, want EX-20-1042", got)
	}

	// Leaving a division (or naming an unknown one) lands back in ND. The
	// sequence never changes.
	got, err = RebuildForTransfer("EX-20-1042", "")
	if err != nil {
		t.Fatalf("RebuildForTransfer to none failed: %v", err)
	}
	if got != "ND-20-1042" {
		t.Fatalf("RebuildForTransfer = %q, want ND-20-1042", got)
	}
}
