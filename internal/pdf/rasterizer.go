package pdf

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Rasterizer turns a complete HTML document into PDF bytes.
type Rasterizer interface {
	HTMLToPDF(ctx context.Context, html string) ([]byte, error)
}

// NewRasterizer uses headless Chrome when a binary is available and the text renderer otherwise.
func NewRasterizer(cfg config.PDFConfig, log *logger.Logger) Rasterizer {
	if cfg.Disabled {
		return NewTextRasterizer()
	}
	bin := cfg.ChromeBin
	if bin == "" {
		found, ok := launcher.LookPath()
		if !ok {
			log.Warn("no Chrome binary found, using text PDF renderer")
			return NewTextRasterizer()
		}
		bin = found
	}
	return NewRodRasterizer(bin, cfg.Timeout, log)
}

// RodRasterizer prints pages through a lazily launched headless Chrome shared by all calls.
type RodRasterizer struct {
	bin     string
	timeout time.Duration
	log     *logger.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRodRasterizer(bin string, timeout time.Duration, log *logger.Logger) *RodRasterizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodRasterizer{bin: bin, timeout: timeout, log: log.With("service", "RodRasterizer")}
}

func (r *RodRasterizer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	controlURL, err := launcher.New().Bin(r.bin).Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.log.Info("chrome started", "bin", r.bin)
	r.browser = browser
	return browser, nil
}

func (r *RodRasterizer) HTMLToPDF(ctx context.Context, html string) ([]byte, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		r.reset()
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	a4w, a4h, margin := 8.27, 11.69, 0.4
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      &a4w,
		PaperHeight:     &a4h,
		MarginTop:       &margin,
		MarginBottom:    &margin,
		MarginLeft:      &margin,
		MarginRight:     &margin,
	})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return io.ReadAll(stream)
}

// reset drops a browser that stopped answering so the next call relaunches it.
func (r *RodRasterizer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
}

func (r *RodRasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}
