package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/page"
)

// ChromeCapturer drives one headless browser and opens a tab per capture.
type ChromeCapturer struct {
	cfg         Config
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	logger      logging.Logger
}

func NewChromeCapturer(cfg Config, logger logging.Logger) (*ChromeCapturer, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	def := DefaultConfig()
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = def.IdleAfter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.Headless))
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// start the browser now so a missing binary fails construction
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("capture: start browser: %w", err)
	}
	return &ChromeCapturer{
		cfg:         cfg,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		logger:      logger.With(logging.Field{Key: "component", Value: "chrome_capture"}),
	}, nil
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
// The timer is armed immediately so pages that load nothing further still
// settle.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idle := make(chan struct{})
	var active int32
	var mu sync.Mutex
	var timer *time.Timer
	var once sync.Once

	arm := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&active) == 0 {
				once.Do(func() { close(idle) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&active, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&active, -1) <= 0 {
				atomic.StoreInt32(&active, 0)
				arm()
			}
		}
	})
	arm()
	return idle
}

func (c *ChromeCapturer) Capture(ctx context.Context, url string) (*page.PageState, []byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.cfg.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	idle := waitNetworkIdle(tabCtx, c.cfg.IdleAfter)
	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return nil, nil, fmt.Errorf("capture %s: navigate: %w", url, err)
	}
	select {
	case <-idle:
	case <-tabCtx.Done():
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("capture %s: waiting for network idle: %w", url, tabCtx.Err())
	}

	var (
		final, title, html string
		raw                []rawElement
	)
	err := chromedp.Run(tabCtx,
		chromedp.Location(&final),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(snapshotScript, &raw),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("capture %s: snapshot: %w", url, err)
	}

	p, err := buildPage(final, title, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("capture %s: %w", url, err)
	}
	c.logger.Debug("captured page",
		logging.Field{Key: "url", Value: final},
		logging.Field{Key: "elements", Value: len(raw)})
	return p, []byte(html), nil
}

func (c *ChromeCapturer) Close() error {
	c.cancel()
	c.allocCancel()
	return nil
}
