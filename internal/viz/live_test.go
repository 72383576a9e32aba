package viz

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/stiffnet/internal/experiment"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveZones(t *testing.T) []*network.Zone {
	t.Helper()
	net, err := network.New([]network.Species{{Name: "a", Z: 1, A: 1}, {Name: "b", Z: 1, A: 1}, {Name: "c", Z: 1, A: 1}}, nil)
	require.NoError(t, err)
	z0 := network.NewZone(net, "0")
	require.NoError(t, z0.SetAbundances([]float64{0.1, 0.5, 0.4}))
	z1 := network.NewZone(net, "1")
	require.NoError(t, z1.SetAbundances([]float64{0.3, 0.6, 0.1}))
	return []*network.Zone{z0, z1}
}

func TestNewProgressMsgRanksSpecies(t *testing.T) {
	zones := liveZones(t)
	msg := NewProgressMsg(experiment.Progress{T: 0.5, Duration: 2, Attempts: 7, Failures: 2, Zones: zones}, 2)

	assert.Equal(t, 2, msg.Zones)
	assert.Equal(t, 7, msg.Attempts)
	require.Len(t, msg.Top, 2)
	assert.Equal(t, "b", msg.Top[0].Name)
	assert.InDelta(t, 1.1, msg.Top[0].Value, 1e-12)
	assert.Equal(t, "c", msg.Top[1].Name)

	// later changes to the zones must not leak into the message
	require.NoError(t, zones[0].SetAbundances([]float64{9, 0, 0}))
	assert.InDelta(t, 1.1, msg.Top[0].Value, 1e-12)

	empty := NewProgressMsg(experiment.Progress{T: 0, Duration: 1}, 3)
	assert.Empty(t, empty.Top)
}

func TestLiveUpdateAndView(t *testing.T) {
	var m tea.Model = NewLive("implicit")
	assert.Nil(t, m.Init())

	m, cmd := m.Update(NewProgressMsg(experiment.Progress{T: 0.5, Duration: 2, Attempts: 3, Failures: 1, Zones: liveZones(t)}, 2))
	assert.Nil(t, cmd)
	out := m.View()
	assert.Contains(t, out, "implicit")
	assert.Contains(t, out, "0.5")
	assert.Contains(t, out, "/ 2")
	assert.Contains(t, out, "attempts")
	assert.Contains(t, out, "running")
	assert.True(t, strings.Index(out, "b ") < strings.Index(out, "c "))
	assert.NotContains(t, out, "a ")

	m, cmd = m.Update(DoneMsg{})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "done")
	assert.False(t, m.(Live).Interrupted())
}

func TestLiveDoneWithError(t *testing.T) {
	m, _ := NewLive("exponential").Update(DoneMsg{Err: errors.New("interval at t = 1: boom")})
	assert.Contains(t, m.View(), "boom")
	assert.EqualError(t, m.(Live).Err(), "interval at t = 1: boom")
}

func TestLiveQuitKey(t *testing.T) {
	m, cmd := NewLive("implicit").Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.(Live).Interrupted())
}
