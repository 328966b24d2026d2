package dsep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/internal/network/networktest"
)

func TestDSeparated_Alarm(t *testing.T) {
	n := networktest.Alarm(t)

	tests := []struct {
		name string
		x, y string
		z    []string
		want bool
	}{
		{"ChainBlockedByAlarm", "Burglary", "MaryCalls", []string{"Alarm"}, true},
		{"ChainBlockedJohn", "Burglary", "JohnCalls", []string{"Alarm"}, true},
		{"ChainOpen", "Burglary", "MaryCalls", nil, false},
		{"IndependentCauses", "Burglary", "Earthquake", nil, true},
		{"ExplainingAway", "Burglary", "Earthquake", []string{"Alarm"}, false},
		{"ExplainingAwayViaDescendant", "Burglary", "Earthquake", []string{"JohnCalls"}, false},
		{"ForkOpen", "JohnCalls", "MaryCalls", nil, false},
		{"ForkBlocked", "JohnCalls", "MaryCalls", []string{"Alarm"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DSeparated(n, []string{tt.x}, []string{tt.y}, tt.z)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// symmetric
			back, err := DSeparated(n, []string{tt.y}, []string{tt.x}, tt.z)
			require.NoError(t, err)
			assert.Equal(t, got, back)
		})
	}
}

func TestDSeparated_Sets(t *testing.T) {
	n := networktest.Asia(t)

	got, err := DSeparated(n, []string{"VisitAsia", "Tuberculosis"}, []string{"Smoker"}, nil)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = DSeparated(n, []string{"VisitAsia"}, []string{"Smoker", "Bronchitis"}, []string{"Dyspnea"})
	require.NoError(t, err)
	assert.False(t, got, "observing a common descendant opens the collider at Either")

	got, err = DSeparated(n, []string{"XRay"}, []string{"Dyspnea"}, []string{"Either", "Smoker"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestDSeparated_ObservedAndOverlapping(t *testing.T) {
	n := networktest.Alarm(t)

	got, err := DSeparated(n, []string{"Alarm"}, []string{"JohnCalls"}, []string{"Alarm"})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = DSeparated(n, []string{"Alarm"}, []string{"Alarm"}, nil)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestDSeparated_UnknownVariable(t *testing.T) {
	n := networktest.Alarm(t)
	_, err := DSeparated(n, []string{"Burglary"}, []string{"Dog"}, nil)
	var unknown *network.UnknownVariableError
	assert.ErrorAs(t, err, &unknown)
}

func TestIndependencies(t *testing.T) {
	n := networktest.Alarm(t)

	pairs, err := Independencies(n, nil)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{A: "Burglary", B: "Earthquake"}}, pairs)

	pairs, err = Independencies(n, []string{"Alarm"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{
		{A: "Burglary", B: "JohnCalls"},
		{A: "Burglary", B: "MaryCalls"},
		{A: "Earthquake", B: "JohnCalls"},
		{A: "Earthquake", B: "MaryCalls"},
		{A: "JohnCalls", B: "MaryCalls"},
	}, pairs)
}
