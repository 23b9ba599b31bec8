package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	a := Ref{ID: 7, Role: RolePatient}
	b := Ref{ID: 3, Role: RoleDoctor}

	require.Equal(t, PairKey(a, b), PairKey(b, a))
}

func TestPairKeyDistinguishesRoles(t *testing.T) {
	patient := Ref{ID: 7, Role: RolePatient}
	doctor := Ref{ID: 3, Role: RoleDoctor}
	staff := Ref{ID: 3, Role: RoleStaff}

	require.NotEqual(t, PairKey(patient, doctor), PairKey(patient, staff))
}

func TestParseKey(t *testing.T) {
	u := Ref{ID: 12, Role: RoleStaff}
	parsed, err := ParseKey(u.Key())
	require.NoError(t, err)
	require.Equal(t, u, parsed)

	_, err = ParseKey("bogus")
	require.Error(t, err)
	_, err = ParseKey("alien:5")
	require.Error(t, err)
}

func TestCRMBacked(t *testing.T) {
	require.False(t, RolePatient.CRMBacked())
	require.True(t, RoleDoctor.CRMBacked())
	require.True(t, RoleStaff.CRMBacked())
}
