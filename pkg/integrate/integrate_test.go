package integrate

import (
	"testing"

	"cmip-imr/pkg/discovery"
	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDeptResult(t *testing.T, dept string, activities []string) discovery.Result {
	t.Helper()
	n := pnet.New("Net_" + dept)
	src, err := n.AddPlace("source")
	require.NoError(t, err)
	prev := src
	for i, a := range activities {
		tr, err := n.AddTransition(dept+":t"+a, a)
		require.NoError(t, err)
		_, err = n.AddArc(prev, tr, true)
		require.NoError(t, err)
		var next *pnet.Place
		if i == len(activities)-1 {
			next, err = n.AddPlace("sink")
		} else {
			next, err = n.AddPlace("p" + a)
		}
		require.NoError(t, err)
		_, err = n.AddArc(next, tr, false)
		require.NoError(t, err)
		prev = next
	}
	sink, _ := n.PlaceByName("sink")
	return discovery.Result{
		Department: dept,
		Net:        n,
		IM:         pnet.Marking{src.ID: 1},
		FM:         pnet.Marking{sink.ID: 1},
	}
}

func TestIntegrate_NamespacesPlacesAndTransitionsPerDepartment(t *testing.T) {
	results := map[string]discovery.Result{
		"X": buildDeptResult(t, "X", []string{"A"}),
		"Y": buildDeptResult(t, "Y", []string{"B"}),
	}
	meta := ingest.CollaborationMetadata{Departments: []string{"X", "Y"}}

	integrated, err := Integrate(results, meta)
	require.NoError(t, err)

	_, ok := integrated.Net.PlaceByName("X:source")
	assert.True(t, ok)
	_, ok = integrated.Net.PlaceByName("Y:source")
	assert.True(t, ok)
	_, ok = integrated.Net.TransitionByName("X:tA")
	assert.True(t, ok)
}

func TestIntegrate_CoalescesSyncTransitionIntoSingleSharedNode(t *testing.T) {
	results := map[string]discovery.Result{
		"X": buildDeptResult(t, "X", []string{"A", "S"}),
		"Y": buildDeptResult(t, "Y", []string{"S", "B"}),
	}
	meta := ingest.CollaborationMetadata{
		Departments: []string{"X", "Y"},
		SyncTasks:   []string{"S"},
	}

	integrated, err := Integrate(results, meta)
	require.NoError(t, err)

	matches := integrated.Net.TransitionsByLabel("S")
	require.Len(t, matches, 1)
	assert.Equal(t, "SYNC:S", matches[0].Name)

	// both X's and Y's places that connect to S must connect to the same
	// shared transition.
	inArcs := integrated.Net.InArcsOfTransition(matches[0])
	outArcs := integrated.Net.OutArcsOfTransition(matches[0])
	assert.NotEmpty(t, inArcs)
	assert.NotEmpty(t, outArcs)
}

func TestIntegrate_AddsMessagePlaceBetweenSenderAndReceiver(t *testing.T) {
	results := map[string]discovery.Result{
		"X": buildDeptResult(t, "X", []string{"A"}),
		"Y": buildDeptResult(t, "Y", []string{"B"}),
	}
	meta := ingest.CollaborationMetadata{
		Departments: []string{"X", "Y"},
		Messages: map[string]ingest.MessageEndpoints{
			"m1": {Sender: "A", Receiver: "B"},
		},
	}

	integrated, err := Integrate(results, meta)
	require.NoError(t, err)

	place, ok := integrated.Net.PlaceByName("MSG:m1")
	require.True(t, ok)
	assert.NotEmpty(t, integrated.Net.InArcsOfPlace(place))
	assert.NotEmpty(t, integrated.Net.OutArcsOfPlace(place))
}

func TestIntegrate_AddsResourcePlaceWithInitialToken(t *testing.T) {
	results := map[string]discovery.Result{
		"X": buildDeptResult(t, "X", []string{"A"}),
		"Y": buildDeptResult(t, "Y", []string{"B"}),
	}
	meta := ingest.CollaborationMetadata{
		Departments: []string{"X", "Y"},
		Resources: map[string]ingest.ResourceUsage{
			"r1": {Req: []string{"A"}, Rel: []string{"B"}},
		},
	}

	integrated, err := Integrate(results, meta)
	require.NoError(t, err)

	place, ok := integrated.Net.PlaceByName("RES:r1")
	require.True(t, ok)
	assert.Equal(t, 1, integrated.IM[place.ID])
}

func TestIntegrate_IsDeterministicAcrossRuns(t *testing.T) {
	buildMeta := func() (map[string]discovery.Result, ingest.CollaborationMetadata) {
		results := map[string]discovery.Result{
			"X": buildDeptResult(t, "X", []string{"A", "S"}),
			"Y": buildDeptResult(t, "Y", []string{"S", "B"}),
		}
		meta := ingest.CollaborationMetadata{
			Departments: []string{"X", "Y"},
			SyncTasks:   []string{"S"},
			Messages:    map[string]ingest.MessageEndpoints{"m1": {Sender: "A", Receiver: "B"}},
		}
		return results, meta
	}

	r1, m1 := buildMeta()
	first, err := Integrate(r1, m1)
	require.NoError(t, err)

	r2, m2 := buildMeta()
	second, err := Integrate(r2, m2)
	require.NoError(t, err)

	namesOf := func(n *pnet.PetriNet) []string {
		var out []string
		for _, p := range n.Places() {
			out = append(out, p.Name)
		}
		return out
	}
	assert.Equal(t, namesOf(first.Net), namesOf(second.Net))
}
