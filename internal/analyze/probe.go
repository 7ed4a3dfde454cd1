// Package analyze probes public topic pages without a login, giving the
// dashboard a quick read on what a tag looks like before a full harvest.
package analyze

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/feedforge/harvester/internal/harvest"
)

const defaultTimeout = 15 * time.Second

// Config controls the public probe collector.
type Config struct {
	// BaseURL is the root of the public site to probe.
	BaseURL string
	// UserAgent overrides the collector user agent when non-empty.
	UserAgent string
	// Timeout bounds a single probe request.
	Timeout time.Duration
	// MaxHeadlines caps the number of headlines in a report.
	MaxHeadlines int
}

// Headline is one piece of public content found on a topic page.
type Headline struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Report summarizes a public topic page.
type Report struct {
	Topic     string     `json:"topic"`
	Headlines []Headline `json:"headlines"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Prober fetches a topic page with a Colly collector and extracts its
// visible headlines.
type Prober struct {
	cfg    Config
	clock  harvest.Clock
	logger *zap.Logger
}

// NewProber builds a Prober. A nil logger is replaced with a no-op logger.
func NewProber(cfg Config, clock harvest.Clock, logger *zap.Logger) (*Prober, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("analyze base url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxHeadlines <= 0 {
		cfg.MaxHeadlines = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{cfg: cfg, clock: clock, logger: logger}, nil
}

// Probe fetches the public page for topic and returns the headlines found
// on it. The request is aborted when ctx is canceled.
func (p *Prober) Probe(ctx context.Context, topic string) (Report, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Report{}, fmt.Errorf("topic is required")
	}

	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = false
	collector.SetRequestTimeout(p.cfg.Timeout)
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}

	report := Report{Topic: topic}
	var fetchErr error

	collector.OnHTML("h1, h2, h3, article p", func(e *colly.HTMLElement) {
		if len(report.Headlines) >= p.cfg.MaxHeadlines {
			return
		}
		text := strings.TrimSpace(e.Text)
		if text == "" {
			return
		}
		report.Headlines = append(report.Headlines, Headline{
			Text: text,
			URL:  e.Request.URL.String(),
		})
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	target := fmt.Sprintf("%s/tag/%s", strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(topic))

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return Report{}, fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Report{}, fmt.Errorf("probe %s: %w", target, err)
		}
		if fetchErr != nil {
			return Report{}, fmt.Errorf("probe %s: %w", target, fetchErr)
		}
	}

	report.FetchedAt = p.clock.Now()
	p.logger.Debug("topic probed",
		zap.String("topic", topic),
		zap.Int("headlines", len(report.Headlines)),
	)
	return report, nil
}
