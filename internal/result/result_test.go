package result

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Trajectory {
	return &Trajectory{
		X: Signals{
			PX1:    []float64{0, 0.01, 0.02},
			PY1:    []float64{0, 0.1, 0.2},
			Theta1: []float64{1.5707, 1.56, 1.55},
			PX0:    []float64{0, 0.01, 0.03},
			PY0:    []float64{0.9, 1.0, 1.1},
			Theta0: []float64{1.5707, 1.54, 1.52},
		},
		U: Controls{
			Delta: []float64{0, -0.05, -0.1},
			VL:    []float64{0.1, 0.1, 0.12},
		},
		T: []float64{0, 0.1, 0.2},
	}
}

func TestRoundTrip(t *testing.T) {
	tr := sample()
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, tr))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tr, got)
}

func TestValidate(t *testing.T) {
	t.Run("ragged signal", func(t *testing.T) {
		tr := sample()
		tr.U.Delta = tr.U.Delta[:2]
		assert.Error(t, tr.Validate())
	})

	t.Run("time must increase", func(t *testing.T) {
		tr := sample()
		tr.T[2] = tr.T[1]
		assert.Error(t, tr.Validate())
	})

	t.Run("empty", func(t *testing.T) {
		var tr Trajectory
		assert.Error(t, tr.Validate())
	})
}

func TestSaveRejectsInvalid(t *testing.T) {
	tr := sample()
	tr.T = tr.T[:1]
	assert.Error(t, Save(filepath.Join(t.TempDir(), "bad.yaml"), tr))
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSV(path, sample()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "t,px1,py1,theta1,px0,py0,theta0,delta,v_l", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,0,0,1.5707,"))
}
