package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bizsync/internal/domain"
)

func offering(updatedAt int64, dirty, deleted bool) *domain.Offering {
	return &domain.Offering{
		Meta: domain.Meta{ID: "o1", OwnerID: "U1", UpdatedAt: updatedAt, Dirty: dirty, Deleted: deleted},
		Name: "Tomatoes",
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		local    domain.Entity
		incoming domain.Entity
		want     Decision
	}{
		{"missing locally", nil, offering(100, false, false), Insert},
		{"missing locally tombstone", nil, offering(100, false, true), Insert},
		{"clean local older", offering(50, false, false), offering(100, false, false), Overwrite},
		{"clean local newer still overwritten", offering(200, false, false), offering(100, false, false), Overwrite},
		{"dirty local older", offering(50, true, false), offering(100, false, false), RemoteWins},
		{"dirty local newer", offering(100, true, false), offering(50, false, false), LocalWins},
		{"dirty local equal", offering(100, true, false), offering(100, false, false), LocalWins},
		{"remote tombstone beats dirty edit", offering(200, true, false), offering(100, false, true), RemoteWins},
		{"dirty local tombstone vs older remote", offering(200, true, true), offering(100, false, true), LocalWins},
		{"dirty local tombstone vs newer remote", offering(100, true, true), offering(200, false, false), RemoteWins},
		{"clean tombstone not resurrected", offering(100, false, true), offering(100, false, false), Skip},
		{"clean tombstone resurrected by newer", offering(100, false, true), offering(101, false, false), Overwrite},
		{"clean tombstone refreshed by tombstone", offering(100, false, true), offering(90, false, true), Overwrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.local, tt.incoming)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestDecisionApplies(t *testing.T) {
	assert.True(t, Insert.Applies())
	assert.True(t, Overwrite.Applies())
	assert.True(t, RemoteWins.Applies())
	assert.False(t, LocalWins.Applies())
	assert.False(t, Skip.Applies())
}
