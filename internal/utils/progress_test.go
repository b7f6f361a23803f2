package utils

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgressBar(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		description string
	}{
		{"known total", 100, DescDownloading},
		{"unknown total", -1, DescCounting},
		{"zero total", 0, DescExtracting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			bar := NewProgressBar(&out, tt.total, tt.description)
			require.NotNil(t, bar)
			assert.NoError(t, bar.Add(1))
			assert.NoError(t, bar.Finish())
		})
	}
}

// TestBarSink tests byte and file accounting
func TestBarSink(t *testing.T) {
	var out bytes.Buffer
	sink := NewBarSink(&out, 3, 300)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			sink.Start(id, 100)
			sink.Advance(id, 60)
			sink.Advance(id, 40)
			var err error
			if i == 2 {
				err = errors.New("boom")
			}
			sink.Finish(id, err)
		}(i)
	}
	wg.Wait()

	finished, failed := sink.Counts()
	assert.Equal(t, 3, finished)
	assert.Equal(t, 1, failed)
	assert.NoError(t, sink.Close())
}

// TestBarSink_UnknownTotal tests spinner mode
func TestBarSink_UnknownTotal(t *testing.T) {
	var out bytes.Buffer
	sink := NewBarSink(&out, 1, 0)
	sink.Advance("x", 1024)
	sink.Finish("x", nil)
	assert.NoError(t, sink.Close())
}
