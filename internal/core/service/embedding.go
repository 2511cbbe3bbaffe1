package service

import (
	"sync"

	"github.com/rl1809/stockpilot/internal/port"
)

// EmbeddingDetector evaluates the frame state once per page load.
type EmbeddingDetector struct {
	window   port.Window
	once     sync.Once
	embedded bool
}

func NewEmbeddingDetector(window port.Window) *EmbeddingDetector {
	return &EmbeddingDetector{window: window}
}

func (d *EmbeddingDetector) IsEmbedded() bool {
	d.once.Do(func() {
		d.embedded = !d.window.IsTopLevel()
	})
	return d.embedded
}
