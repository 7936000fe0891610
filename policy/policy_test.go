package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	require.Equal(t, Public, p.Confidentiality)
	require.Equal(t, uint32(0), p.Integrity)
	require.Equal(t, NotDeleted, p.Deleted)
	require.False(t, p.Consent)
	require.False(t, p.Locked())
}

func TestLockedOnceDeletionStarted(t *testing.T) {
	p := Default()
	p.Deleted = Pending
	require.True(t, p.Locked())
	p.Deleted = Deleted
	require.True(t, p.Locked())
}

func TestWireDeletedCollapse(t *testing.T) {
	require.False(t, Policy{Deleted: NotDeleted}.WireDeleted())
	require.True(t, Policy{Deleted: Pending}.WireDeleted())
	require.True(t, Policy{Deleted: Deleted}.WireDeleted())
}

func TestFromWireDeletedChoosesPending(t *testing.T) {
	require.Equal(t, Pending, FromWireDeleted(true))
	require.Equal(t, NotDeleted, FromWireDeleted(false))
}
