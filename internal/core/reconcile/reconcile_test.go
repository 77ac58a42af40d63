package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

func TestReconcileNonDestructiveMerge(t *testing.T) {
	local := []entity.Ticket{
		{Type: constants.Win, Numbers: "5", Amount: 500, Provenance: entity.ProvenanceLocal},
	}
	ai := []entity.Ticket{
		{Type: constants.Win, Numbers: "5", Amount: 300, Payout: 1200},
	}

	res := ReconcileWithReport(local, ai)
	require.Len(t, res.Tickets, 1)
	got := res.Tickets[0]
	assert.Equal(t, int64(500), got.Amount)
	assert.Equal(t, int64(1200), got.Payout)
	assert.Equal(t, entity.ProvenanceLocalAI, got.Provenance)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []Conflict{{Key: "単勝|5", Field: "amount", Local: 500, Proposed: 300}}, res.Conflicts)
}

func TestReconcileAdditiveUnion(t *testing.T) {
	local := []entity.Ticket{
		{Type: constants.Quinella, Numbers: "3-5", Amount: 500, Provenance: entity.ProvenanceLocal},
	}
	ai := []entity.Ticket{
		{Type: "三連単", Numbers: "2→5→7", Amount: 100},
		{Type: constants.Quinella, Numbers: "3 - 5", Payout: 1230},
	}

	res := ReconcileWithReport(local, ai)
	require.Len(t, res.Tickets, 2)

	assert.Equal(t, entity.Ticket{
		Type: constants.Quinella, Numbers: "3-5", Amount: 500, Payout: 1230, Provenance: entity.ProvenanceLocalAI,
	}, res.Tickets[0])
	assert.Equal(t, entity.Ticket{
		Type: constants.Trifecta, Numbers: "2→5→7", Amount: 100, Provenance: entity.ProvenanceAI,
	}, res.Tickets[1])
	assert.Equal(t, 1, res.Added)
	assert.Empty(t, res.Conflicts)
}

func TestReconcileUnknownAIType(t *testing.T) {
	got := Reconcile(nil, []entity.Ticket{{Type: "WIN5", Numbers: "1", Amount: 100}})
	require.Len(t, got, 1)
	assert.Equal(t, constants.UnknownType, got[0].Type)
	assert.Equal(t, entity.ProvenanceAI, got[0].Provenance)
}

func TestReconcileFillsZeroAmount(t *testing.T) {
	local := []entity.Ticket{{Type: constants.Wide, Numbers: "1-4", Provenance: entity.ProvenanceLocal}}
	ai := []entity.Ticket{{Type: constants.Wide, Numbers: "1-4", Amount: 300}}

	got := Reconcile(local, ai)
	require.Len(t, got, 1)
	assert.Equal(t, int64(300), got[0].Amount)
}

func TestReconcileKeepsOrderAndInputs(t *testing.T) {
	local := []entity.Ticket{
		{Type: constants.Win, Numbers: "1", Amount: 100},
		{Type: constants.Win, Numbers: "2", Amount: 100},
	}
	ai := []entity.Ticket{
		{Type: constants.Win, Numbers: "3", Amount: 100},
		{Type: constants.Win, Numbers: "1", Payout: 400},
	}

	got := Reconcile(local, ai)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{got[0].Numbers, got[1].Numbers, got[2].Numbers})
	assert.Equal(t, entity.ProvenanceLocal, got[1].Provenance)
	assert.Zero(t, local[0].Payout, "inputs are not mutated")
}

func TestReconcileEmpty(t *testing.T) {
	got := Reconcile(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReconcileZeroPaddedSelections(t *testing.T) {
	local := []entity.Ticket{
		{Type: constants.Quinella, Numbers: "05-12", Amount: 500, Provenance: entity.ProvenanceLocal},
	}
	ai := []entity.Ticket{
		{Type: constants.Quinella, Numbers: "5-12", Amount: 500, Payout: 1200},
	}

	res := ReconcileWithReport(local, ai)
	require.Len(t, res.Tickets, 1)
	assert.Equal(t, int64(500), res.Tickets[0].Amount)
	assert.Equal(t, int64(1200), res.Tickets[0].Payout)
	assert.Equal(t, entity.ProvenanceLocalAI, res.Tickets[0].Provenance)
	assert.Zero(t, res.Added)
}

func TestReconcileDuplicateLocalKeepsFirst(t *testing.T) {
	local := []entity.Ticket{
		{Type: constants.Win, Numbers: "5", Amount: 500, Provenance: entity.ProvenanceLocal},
		{Type: constants.Win, Numbers: "05", Amount: 300, Payout: 900, Provenance: entity.ProvenanceLocal},
	}

	got := Reconcile(local, nil)
	require.Len(t, got, 1)
	assert.Equal(t, int64(500), got[0].Amount)
	assert.Equal(t, int64(900), got[0].Payout)
}
