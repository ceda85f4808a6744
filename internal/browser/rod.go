package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlfredBerg/rod-jobscraper/internal/js"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Options struct {
	// Bin is the browser executable. Empty lets the launcher look one up or
	// download it.
	Bin      string
	Headless bool
	// Trace logs every CDP action rod performs.
	Trace bool
	// BlockResources fails image, font and media requests.
	BlockResources bool
	WaitTimeout    time.Duration
	Logger         *zap.SugaredLogger
}

// RodSession drives one tab of a Chromium browser through go-rod.
type RodSession struct {
	browser *rod.Browser
	page    *rod.Page
	wait    time.Duration
	log     *zap.SugaredLogger
	closeFn func() error
}

// Launch starts a browser and returns a session on a blank first tab.
// Closing that session shuts the whole browser down.
func Launch(ctx context.Context, opts Options) (*RodSession, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.S()
	}

	l := launcher.New().Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b := rod.New().
		ControlURL(controlURL).
		Trace(opts.Trace)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	shutdown := func() error {
		err := b.Close()
		l.Cleanup()
		return err
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		return nil, multierr.Append(fmt.Errorf("ignoring cert errors: %w", err), shutdown())
	}

	// Don't download files in the browser, e.g. pdf attachments on a posting
	err = proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorDeny,
		BrowserContextID: b.BrowserContextID,
	}.Call(b)
	if err != nil {
		logger.Warnf("could not deny downloads: %s", err)
	}

	var router *rod.HijackRouter
	if opts.BlockResources {
		router = b.HijackRequests()
		router.MustAdd("*", blockHeavyResources)
		go router.Run()
	}

	browser := b.Context(ctx)
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("opening first tab: %w", err), shutdown())
	}
	dismissDialogs(page)

	return &RodSession{
		browser: browser,
		page:    page,
		wait:    opts.WaitTimeout,
		log:     logger,
		closeFn: func() error {
			var errs error
			if router != nil {
				errs = router.Stop()
			}
			return multierr.Append(errs, shutdown())
		},
	}, nil
}

func blockHeavyResources(ctx *rod.Hijack) {
	switch ctx.Request.Type() {
	case proto.NetworkResourceTypeImage, proto.NetworkResourceTypeFont, proto.NetworkResourceTypeMedia:
		ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}
	ctx.ContinueRequest(&proto.FetchContinueRequest{})
}

// Avoid alerts blocking the tab
func dismissDialogs(page *rod.Page) {
	go page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		_ = proto.PageHandleJavaScriptDialog{Accept: false, PromptText: ""}.Call(page)
	})()
}

func (s *RodSession) Navigate(url string) error {
	p := s.page.Timeout(s.wait)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, err)
	}
	return nil
}

func (s *RodSession) element(xpath string) (*rod.Element, error) {
	el, err := s.page.Timeout(s.wait).ElementX(xpath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, xpath)
		}
		return nil, fmt.Errorf("looking up %s: %w", xpath, err)
	}
	return el.CancelTimeout(), nil
}

func (s *RodSession) Text(xpath string) (string, error) {
	el, err := s.element(xpath)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("reading text of %s: %w", xpath, err)
	}
	return CleanText(text), nil
}

// Attribute prefers the DOM property so that links come back absolute, and
// falls back to the raw attribute.
func (s *RodSession) Attribute(xpath, name string) (string, error) {
	el, err := s.element(xpath)
	if err != nil {
		return "", err
	}

	prop, err := el.Property(name)
	if err == nil && !prop.Nil() {
		return prop.Str(), nil
	}

	attr, err := el.Attribute(name)
	if err != nil {
		return "", fmt.Errorf("reading %s of %s: %w", name, xpath, err)
	}
	if attr == nil {
		return "", fmt.Errorf("%w: %s has no %s", ErrNotFound, xpath, name)
	}
	return *attr, nil
}

func (s *RodSession) Click(xpath string) error {
	el, err := s.element(xpath)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scrolling to %s: %w", xpath, err)
	}

	//Is the element actually on top and can be clicked?
	visible := false
	res, err := s.page.Eval(js.IS_TOP_VISIBLE, xpath)
	if err != nil {
		s.log.Debugf("visible js error: %s", err)
	} else {
		visible = res.Value.Bool()
	}

	if visible {
		err = el.Click(proto.InputMouseButtonLeft, 1)
	} else {
		s.log.Debugf("%s is covered, clicking from script", xpath)
		_, err = el.Eval(js.CLICK)
	}
	if err != nil {
		return fmt.Errorf("clicking %s: %w", xpath, err)
	}

	if err := s.page.Timeout(s.wait).WaitStable(time.Second); err != nil {
		s.log.Debugf("wait stable errored out due to: %s", err)
	}
	return nil
}

func (s *RodSession) OpenTab(url string) (Session, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("opening tab for %s: %w", url, err)
	}
	dismissDialogs(page)

	if err := page.Timeout(s.wait).WaitLoad(); err != nil {
		return nil, multierr.Append(fmt.Errorf("waiting for %s to load: %w", url, err), page.Close())
	}

	return &RodSession{
		browser: s.browser,
		page:    page,
		wait:    s.wait,
		log:     s.log,
		closeFn: page.Close,
	}, nil
}

func (s *RodSession) Close() error {
	return s.closeFn()
}
