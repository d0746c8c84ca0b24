package splitter

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-tiler/pkg/types"
)

// Progress counts finished images and logs one status line per image.
// Step is safe for concurrent use; increment and log happen under one lock
// so lines are never interleaved or numbered out of order.
type Progress struct {
	mu    sync.Mutex
	done  int
	total int
	log   logrus.FieldLogger
}

// NewProgress creates a counter for total images
func NewProgress(total int, log logrus.FieldLogger) *Progress {
	return &Progress{total: total, log: log}
}

// Step records one split image and logs its status line
func (p *Progress) Step(rec types.ImageRecord, patches int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.log.Info(p.line(rec, patches))
}

// Skip records one image that produced no patches
func (p *Progress) Skip(rec types.ImageRecord, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.log.WithField("image", rec.ID).Warnf("(%s) - skipped %s: %v", p.counter(), rec.Filename, err)
}

// Done returns the number of images accounted for so far
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Progress) counter() string {
	pct := 100.0
	if p.total > 0 {
		pct = 100 * float64(p.done) / float64(p.total)
	}
	return fmt.Sprintf("%.1f%% %d:%d", pct, p.done, p.total)
}

func (p *Progress) line(rec types.ImageRecord, patches int) string {
	return fmt.Sprintf("(%s) - Filename: %s - width: %-5d - height: %-5d - Objects: %-5d - Patches: %d",
		p.counter(), rec.Filename, rec.Width, rec.Height, len(rec.Annotations), patches)
}
