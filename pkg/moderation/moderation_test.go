package moderation

import (
	"errors"
	"testing"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"pending", Pending, false},
		{"Accepted", Accepted, false},
		{"approved", Accepted, false},
		{" APPROVED ", Accepted, false},
		{"rejected", Rejected, false},
		{"cancelled", Cancelled, false},
		{"done", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.raw)
		if tt.wantErr {
			assert.True(t, errors.Is(err, apperr.ErrInvalidStatus), tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestCheck(t *testing.T) {
	const proposer, owner, member = "proposer", "owner", "member"

	tests := []struct {
		name     string
		tr       Transition
		wantKind apperr.Kind
		wantNoop bool
	}{
		{
			name: "member accepts someone else's proposal",
			tr:   Transition{Current: Pending, Target: Accepted, ActorID: member, ProposerID: proposer},
		},
		{
			name:     "proposer accepts own proposal",
			tr:       Transition{Current: Pending, Target: Accepted, ActorID: proposer, ProposerID: proposer},
			wantKind: apperr.KindForbidden,
		},
		{
			name:     "proposer rejects own proposal",
			tr:       Transition{Current: Pending, Target: Rejected, ActorID: proposer, ProposerID: proposer},
			wantKind: apperr.KindForbidden,
		},
		{
			name: "owner self-approves",
			tr:   Transition{Current: Pending, Target: Accepted, ActorID: owner, ProposerID: owner, ModerationOwner: true},
		},
		{
			name:     "member resets to pending",
			tr:       Transition{Current: Accepted, Target: Pending, ActorID: member, ProposerID: proposer},
			wantKind: apperr.KindOnlyOwnerCanResetToPending,
		},
		{
			name: "owner resets to pending",
			tr:   Transition{Current: Rejected, Target: Pending, ActorID: owner, ProposerID: proposer, ModerationOwner: true},
		},
		{
			name:     "stranger cancels",
			tr:       Transition{Current: Pending, Target: Cancelled, ActorID: member, ProposerID: proposer},
			wantKind: apperr.KindOnlyAuthorOrOwnerCanCancel,
		},
		{
			name: "author cancels",
			tr:   Transition{Current: Pending, Target: Cancelled, ActorID: proposer, ProposerID: proposer},
		},
		{
			name: "owner cancels",
			tr:   Transition{Current: Accepted, Target: Cancelled, ActorID: owner, ProposerID: proposer, ModerationOwner: true},
		},
		{
			name:     "cancelled is terminal",
			tr:       Transition{Current: Cancelled, Target: Pending, ActorID: owner, ProposerID: proposer, ModerationOwner: true},
			wantKind: apperr.KindInvalidTransition,
		},
		{
			name:     "re-cancel is a no-op",
			tr:       Transition{Current: Cancelled, Target: Cancelled, ActorID: proposer, ProposerID: proposer},
			wantNoop: true,
		},
		{
			name:     "legacy approved already accepted",
			tr:       Transition{Current: "approved", Target: Accepted, ActorID: member, ProposerID: proposer},
			wantNoop: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noop, err := Check(tt.tr)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNoop, noop)
		})
	}
}

func TestCheck_SelfModerationHint(t *testing.T) {
	_, err := Check(Transition{Current: Pending, Target: Accepted, ActorID: "a", ProposerID: "a"})
	require.Error(t, err)
	assert.Equal(t, HintSelfModeration, apperr.From(err).Hint)
}

func TestFromRaised(t *testing.T) {
	err := FromRaised("self_moderation_forbidden")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	err = FromRaised("invalid_transition")
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	assert.NoError(t, FromRaised("division by zero"))
}
