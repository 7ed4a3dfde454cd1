// Package chromedp drives a real browser session against the feed. It
// logs in, mediates passcode checkpoints through the reporter, and
// harvests posts by scrolling the rendered feed.
package chromedp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/feedforge/harvester/internal/harvest"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultScrollPause       = 2 * time.Second
	defaultScrollRounds      = 8
	defaultMaxPosts          = 50

	usernameSelector = `input[name="session_key"], input#username`
	passwordSelector = `input[name="session_password"], input#password`
	submitSelector   = `button[type="submit"]`
	passcodeSelector = `input[name="pin"], input#input__otp`
	verifySelector   = `button[type="submit"]`

	// checkpointFragment marks the human-verification interstitial in the
	// post-login URL.
	checkpointFragment = "checkpoint"
)

// extractPostsJS pulls author, text, and like counts out of the rendered
// feed cards.
const extractPostsJS = `(() => {
	const cards = document.querySelectorAll('div.feed-shared-update-v2, article');
	const out = [];
	for (const card of cards) {
		const author = card.querySelector('.update-components-actor__title, .author')?.innerText?.trim() ?? '';
		const content = card.querySelector('.update-components-text, .post-body')?.innerText?.trim() ?? '';
		const likesText = card.querySelector('.social-details-social-counts__reactions-count, .likes')?.innerText ?? '0';
		const likes = parseInt(likesText.replace(/[^0-9]/g, ''), 10) || 0;
		if (content) {
			out.push({author, content, likes});
		}
	}
	return JSON.stringify(out);
})()`

// Config controls the browser harvest engine.
type Config struct {
	LoginURL string
	FeedURL  string
	Username string
	Password string

	UserAgent         string
	NavigationTimeout time.Duration
	// ScrollRounds is how many times the feed is scrolled before the run
	// settles for what it has.
	ScrollRounds int
	ScrollPause  time.Duration
	// MaxPosts stops the harvest early once reached.
	MaxPosts int
}

// Engine implements harvest.Engine with a headless Chrome session.
type Engine struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

type scrapedPost struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	Likes   int    `json:"likes"`
}

// New creates a browser engine. Close must be called to release the
// allocator.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.LoginURL == "" || cfg.FeedURL == "" {
		return nil, fmt.Errorf("login and feed urls are required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("feed credentials are required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ScrollRounds <= 0 {
		cfg.ScrollRounds = defaultScrollRounds
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = defaultScrollPause
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = defaultMaxPosts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Engine{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (e *Engine) Close() {
	e.allocCancel()
}

// Run executes one full harvest: login, optional passcode checkpoint,
// then a scroll-and-collect loop over the feed.
func (e *Engine) Run(ctx context.Context, reporter harvest.Reporter) (harvest.HarvestResult, error) {
	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	defer taskCancel()

	// The browser session dies with the run context.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	reporter.Progress("Starting browser...")
	if err := e.login(ctx, taskCtx, reporter); err != nil {
		if ctx.Err() != nil {
			return harvest.HarvestResult{}, ctx.Err()
		}
		return harvest.HarvestResult{}, &harvest.EngineError{Stage: "login", Err: err}
	}
	reporter.Progress("Login successful.")

	posts, err := e.harvestFeed(ctx, taskCtx, reporter)
	if err != nil {
		if ctx.Err() != nil {
			return harvest.HarvestResult{}, ctx.Err()
		}
		return harvest.HarvestResult{}, &harvest.EngineError{Stage: "harvest", Err: err}
	}
	return harvest.HarvestResult{Posts: posts}, nil
}

func (e *Engine) login(ctx, taskCtx context.Context, reporter harvest.Reporter) error {
	reporter.Progress("Logging in...")

	loginCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavigationTimeout)
	defer cancel()

	var location string
	if err := chromedp.Run(loginCtx,
		e.sessionSetupAction(),
		chromedp.Navigate(e.cfg.LoginURL),
		chromedp.WaitVisible(usernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(usernameSelector, e.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, e.cfg.Password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&location),
	); err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}

	for strings.Contains(location, checkpointFragment) {
		code, err := reporter.Challenge(ctx)
		if err != nil {
			return err
		}

		codeCtx, codeCancel := context.WithTimeout(taskCtx, e.cfg.NavigationTimeout)
		err = chromedp.Run(codeCtx,
			chromedp.WaitVisible(passcodeSelector, chromedp.ByQuery),
			chromedp.SendKeys(passcodeSelector, code, chromedp.ByQuery),
			chromedp.Click(verifySelector, chromedp.ByQuery),
			chromedp.Sleep(3*time.Second),
			chromedp.Location(&location),
		)
		codeCancel()
		if err != nil {
			return fmt.Errorf("submit passcode: %w", err)
		}
		if strings.Contains(location, checkpointFragment) {
			reporter.Progress("Passcode rejected. A new challenge was raised.")
		}
	}
	return nil
}

func (e *Engine) harvestFeed(ctx, taskCtx context.Context, reporter harvest.Reporter) ([]harvest.Post, error) {
	reporter.Progress("Loading feed...")

	feedCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavigationTimeout)
	err := chromedp.Run(feedCtx,
		chromedp.Navigate(e.cfg.FeedURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}

	seen := make(map[string]struct{})
	var posts []harvest.Post

	for round := 0; round < e.cfg.ScrollRounds && len(posts) < e.cfg.MaxPosts; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var raw string
		if err := chromedp.Run(taskCtx,
			chromedp.Evaluate(extractPostsJS, &raw),
		); err != nil {
			return nil, fmt.Errorf("extract posts: %w", err)
		}

		var batch []scrapedPost
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			return nil, fmt.Errorf("decode extracted posts: %w", err)
		}
		for _, p := range batch {
			if _, ok := seen[p.Content]; ok {
				continue
			}
			seen[p.Content] = struct{}{}
			posts = append(posts, harvest.Post{
				Author:  p.Author,
				Content: p.Content,
				Likes:   p.Likes,
			})
			if len(posts) >= e.cfg.MaxPosts {
				break
			}
		}
		reporter.Progress(fmt.Sprintf("Scanning... (%d/%d)", len(posts), e.cfg.MaxPosts))

		if err := chromedp.Run(taskCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(e.cfg.ScrollPause),
		); err != nil {
			return nil, fmt.Errorf("scroll feed: %w", err)
		}
	}

	e.logger.Info("feed harvest finished", zap.Int("posts", len(posts)))
	return posts, nil
}

func (e *Engine) sessionSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if e.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(e.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
