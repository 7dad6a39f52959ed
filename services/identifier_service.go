// crew-registry-system/services/identifier_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"crew-registry-system/models"
)

const (
	idSeparator = "-"
	// seqFloor is the assumed maximum when the registry holds no parseable
	// identifiers yet; the first allocation lands on 1001.
	seqFloor = 1000
	// fallbackSeqMin/Max bound the random sequence used when the registry
	// scan fails outright. High sub-range to keep clear of the organic
	// counter, which shrinks (but does not eliminate) collision odds.
	fallbackSeqMin = 9000
	fallbackSeqMax = 9999
)

// Identifier is the parsed form of an ID Number.
type Identifier struct {
	DivisionCode string
	RankCode     string
	Sequence     int
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s%s%s%s%04d", id.DivisionCode, idSeparator, id.RankCode, idSeparator, id.Sequence)
}

// IdentifierService mints org ID Numbers of the form
// {DivisionCode}-{RankCode}-{Sequence} against the registry table.
//
// Allocation is scan-then-generate with no uniqueness constraint on the
// remote side. Calls are serialized behind mu, which closes the in-process
// race; a second process allocating concurrently can still observe the same
// maximum and mint a duplicate. The onboarding flow re-checks the minted ID
// at record creation and retries a bounded number of times to cover that.
type IdentifierService struct {
	mu    sync.Mutex
	Store RecordStore
}

func NewIdentifierService(store RecordStore) *IdentifierService {
	return &IdentifierService{Store: store}
}

// Allocate mints a fresh ID Number for the given member type. Division wins
// over fleet wing when both are supplied; unknown values fall back to
// Non-Division rather than failing.
func (s *IdentifierService) Allocate(ctx context.Context, memberType models.MemberType, fleetWing, division string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := Identifier{
		DivisionCode: resolveDivisionCode(fleetWing, division),
		RankCode:     rankCodeForMemberType(memberType),
		Sequence:     s.nextSequence(ctx),
	}
	return id.String()
}

func resolveDivisionCode(fleetWing, division string) string {
	if division == "" && fleetWing != "" {
		division = models.FleetWingDivisions[fleetWing]
	}
	if code, ok := models.DivisionCodes[division]; ok {
		return code
	}
	return models.DivisionNoneCode
}

func rankCodeForMemberType(memberType models.MemberType) string {
	return models.RankCodes[models.RankForMemberType(memberType)]
}

// nextSequence scans every ID Number in the registry, takes the maximum
// trailing sequence (malformed values are skipped), and returns max+1.
// The scan covers the whole table; sequences are one shared pool, not
// partitioned by division or rank.
func (s *IdentifierService) nextSequence(ctx context.Context) int {
	rows, err := s.Store.ListRows(ctx)
	if err != nil {
		seq := fallbackSeqMin + rand.Intn(fallbackSeqMax-fallbackSeqMin+1)
		log.Printf("⚠️ [ALLOC] Registry scan failed, using random fallback sequence %04d: %v", seq, err)
		return seq
	}

	max := seqFloor
	for _, row := range rows {
		raw, _ := row.Values[models.ColIDNumber].(string)
		parsed, err := Reparse(raw)
		if err != nil {
			continue
		}
		if parsed.Sequence > max {
			max = parsed.Sequence
		}
	}
	return max + 1
}

// Reparse splits an ID Number back into its components.
func Reparse(id string) (Identifier, error) {
	parts := strings.Split(strings.TrimSpace(id), idSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Identifier{}, fmt.Errorf("malformed id number: %q", id)
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return Identifier{}, fmt.Errorf("malformed sequence in id number: %q", id)
	}
	return Identifier{DivisionCode: parts[0], RankCode: parts[1], Sequence: seq}, nil
}

// RebuildForPromotion swaps the rank segment for the new rank's code.
// The sequence is stable for the lifetime of the identifier and is never
// re-derived.
func RebuildForPromotion(id, newRank string) (string, error) {
	parsed, err := Reparse(id)
	if err != nil {
		return "", err
	}
	code, ok := models.RankCodes[newRank]
	if !ok {
		return "", fmt.Errorf("unknown rank: %q", newRank)
	}
	parsed.RankCode = code
	return parsed.String(), nil
}

// RebuildForTransfer swaps the division segment. An empty or unknown
// division lands the member back in Non-Division.
func RebuildForTransfer(id, newDivision string) (string, error) {
	parsed, err := Reparse(id)
	if err != nil {
		return "", err
	}
	if code, ok := models.DivisionCodes[newDivision]; ok {
		parsed.DivisionCode = code
	} else {
		parsed.DivisionCode = models.DivisionNoneCode
	}
	return parsed.String(), nil
}
