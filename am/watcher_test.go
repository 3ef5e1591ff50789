package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConfigWatcherReloads(t *testing.T) {
	_, project := isolate(t)
	path := filepath.Join(project, "am.toml")
	writeFile(t, path, "[timers]\nminimum_periodicity_minutes = 60\n")

	cw, err := NewConfigWatcher(path, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	cw.SetDebounce(20 * time.Millisecond)

	got := make(chan int, 4)
	cw.OnReload(func(c *Config) error {
		got <- c.Timers.MinimumPeriodicityMinutes
		return nil
	})
	cw.Start()
	defer cw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[timers]\nminimum_periodicity_minutes = 120\n"), 0644))

	select {
	case v := <-got:
		assert.Equal(t, 120, v)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback not called")
	}
}

func TestConfigWatcherIgnoresOwnWrite(t *testing.T) {
	_, project := isolate(t)
	path := filepath.Join(project, "am.toml")
	writeFile(t, path, "[timers]\nminimum_periodicity_minutes = 60\n")

	cw, err := NewConfigWatcher(path, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	cw.SetDebounce(20 * time.Millisecond)

	called := make(chan struct{}, 4)
	cw.OnReload(func(*Config) error {
		called <- struct{}{}
		return nil
	})
	cw.Start()
	defer cw.Stop()

	cw.MarkOwnWrite()
	require.NoError(t, os.WriteFile(path, []byte("[timers]\nminimum_periodicity_minutes = 61\n"), 0644))

	select {
	case <-called:
		// A single write can raise more than one event on some platforms;
		// only the first is swallowed.
	case <-time.After(300 * time.Millisecond):
	}
	assert.False(t, cw.checkOwnWrite(), "own-write flag consumed")
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/x/am.toml.back1"))
	assert.True(t, isBackupFile("am.toml.back3"))
	assert.False(t, isBackupFile("am.toml"))
}
