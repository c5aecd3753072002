package main

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBars renders one bar per chunked upload.
type progressBars struct {
	progress *mpb.Progress

	mu   sync.Mutex
	bars map[string]*mpb.Bar
}

func newProgressBars(output io.Writer) *progressBars {
	return &progressBars{
		progress: mpb.New(mpb.WithOutput(output), mpb.WithWidth(60)),
		bars:     map[string]*mpb.Bar{},
	}
}

// Update moves the bar of locator to sent bytes, creating it on first use.
func (p *progressBars) Update(locator string, sent, total int64) {
	p.mu.Lock()
	bar, ok := p.bars[locator]
	if !ok {
		bar = p.progress.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(filepath.Base(locator), decor.WCSyncSpaceR),
				decor.CountersKibiByte("% .2f / % .2f"),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30), ""),
				decor.OnComplete(decor.Name(" ] "), ""),
				decor.OnComplete(decor.Percentage(decor.WCSyncSpace), "Done!"),
			),
		)
		p.bars[locator] = bar
	}
	p.mu.Unlock()

	bar.SetCurrent(sent)
}

// Wait stops the bars of unfinished uploads and waits for rendering to end.
func (p *progressBars) Wait() {
	p.mu.Lock()
	for _, bar := range p.bars {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	p.mu.Unlock()

	p.progress.Wait()
}

// count returns the number of bars created so far.
func (p *progressBars) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bars)
}
