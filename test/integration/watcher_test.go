//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/daemon"
	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/usecase"
	"github.com/eliteGoblin/focusd/lockin/test/fixtures"
)

// stubProbe reports a fixed foreground window.
type stubProbe struct {
	mu     sync.Mutex
	window domain.ForegroundWindow
}

func (p *stubProbe) Set(process, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = domain.ForegroundWindow{PID: 100, ProcessName: process, Title: title}
}

func (p *stubProbe) Foreground(ctx context.Context) (domain.ForegroundWindow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window, nil
}

// pngCapturer writes real PNG files in place of screenshots.
type pngCapturer struct {
	dir string

	mu    sync.Mutex
	shots []string
}

func (c *pngCapturer) CaptureBurst(ctx context.Context, count int, duration time.Duration) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var paths []string
	for i := 0; i < count; i++ {
		path, err := fixtures.WritePNG(c.dir, fmt.Sprintf("burst_%d_%d.png", len(c.shots), i), 1280, 720)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		c.shots = append(c.shots, path)
	}
	return paths, nil
}

func (c *pngCapturer) Shots() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.shots...)
}

// recordingSink keeps every alert it receives.
type recordingSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (s *recordingSink) Notify(ctx context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *recordingSink) Alerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert(nil), s.alerts...)
}

var _ = Describe("Monitoring loop", func() {
	var (
		tmpDir   string
		fake     *fixtures.FakeOllama
		probe    *stubProbe
		capturer *pngCapturer
		sink     *recordingSink
		cache    *infra.FileDistractionCache
		tracker  *daemon.SessionTracker
		watcher  *daemon.Watcher
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "lockin-watcher-*")
		Expect(err).NotTo(HaveOccurred())

		fake = fixtures.NewFakeOllama(testModel)
		fake.Responder = func(req fixtures.GenerateRequest) string {
			if len(req.Images) > 0 {
				return captionReply(req)
			}
			return `{"Reasoning": "Cat videos", "Distracted": true, "Confidence": 92}`
		}

		probe = &stubProbe{}
		capturer = &pngCapturer{dir: tmpDir}
		sink = &recordingSink{}
		cache = infra.NewDistractionCache(tmpDir, "test", zap.NewNop())
		tracker = daemon.NewSessionTracker("test", "writing a thesis", nil, zap.NewNop())

		table := domain.ClassificationTable{
			WorkProcesses:  []string{"code"},
			MixedProcesses: []string{"firefox"},
		}
		profile := &domain.Profile{Name: "test"}
		monitor := usecase.NewMixedProcessMonitor(0, zap.NewNop())
		evaluator := usecase.NewEvaluatorWithMonitor(profile, table, cache, monitor, zap.NewNop())

		analyzer := usecase.NewAnalyzer(newClient(context.Background(), fake, false),
			usecase.DefaultAnalyzerConfig(), zap.NewNop())

		config := daemon.DefaultWatcherConfig()
		config.PollInterval = 20 * time.Millisecond
		config.ScreenshotCount = 2
		config.ScreenshotDuration = 10 * time.Millisecond
		config.WorkTopic = "writing a thesis"

		watcher = daemon.NewWatcher(config, probe, evaluator, analyzer, capturer, cache,
			infra.NewFileSystemManager(), []domain.AlertSink{sink}, tracker, zap.NewNop())
	})

	AfterEach(func() {
		fake.Close()
		os.RemoveAll(tmpDir)
	})

	run := func() (context.CancelFunc, chan error) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- watcher.Run(ctx) }()
		return cancel, done
	}

	It("should cache a distracting window and alert on it", func() {
		probe.Set("firefox", "Cats playing piano - YouTube")
		cancel, done := run()

		Eventually(func() bool {
			return cache.IsDistracting("firefox", "Cats playing piano - YouTube")
		}, 5*time.Second, 20*time.Millisecond).Should(BeTrue())

		Eventually(sink.Alerts, 5*time.Second).ShouldNot(BeEmpty())
		alert := sink.Alerts()[0]
		Expect(alert.Reason).To(Equal(domain.AlertAnalysis))
		Expect(alert.Confidence).To(Equal(92))

		By("deleting the screenshots after analysis")
		Eventually(func() []string {
			var left []string
			for _, shot := range capturer.Shots() {
				if _, err := os.Stat(shot); err == nil {
					left = append(left, shot)
				}
			}
			return left
		}, 5*time.Second).Should(BeEmpty())

		By("persisting the cache to disk")
		Expect(filepath.Dir(cache.Path())).To(Equal(tmpDir))
		reloaded := infra.NewDistractionCacheWithPath(cache.Path(), zap.NewNop())
		Expect(reloaded.IsDistracting("FIREFOX", "  cats playing piano - youtube ")).To(BeTrue())

		cancel()
		Eventually(done, 2*time.Second).Should(Receive(MatchError(context.Canceled)))
		Expect(tracker.Snapshot().AnalysisCount).To(BeNumerically(">=", 1))
	})

	It("should leave work windows alone", func() {
		probe.Set("code", "main.go - lockin")
		cancel, done := run()

		Consistently(sink.Alerts, 300*time.Millisecond).Should(BeEmpty())
		Expect(fake.Recorded()).To(BeEmpty())
		Expect(cache.Count()).To(Equal(0))

		cancel()
		Eventually(done, 2*time.Second).Should(Receive(MatchError(context.Canceled)))
	})

	It("should alert from the cache without asking the model again", func() {
		Expect(cache.Add("firefox", "Reddit")).To(Succeed())
		probe.Set("firefox", "Reddit")
		cancel, done := run()

		Eventually(sink.Alerts, 2*time.Second).ShouldNot(BeEmpty())
		Expect(sink.Alerts()[0].Reason).To(Equal(domain.AlertCache))
		Expect(fake.Recorded()).To(BeEmpty())

		cancel()
		Eventually(done, 2*time.Second).Should(Receive(MatchError(context.Canceled)))
		Expect(tracker.Snapshot().CacheHits).To(BeNumerically(">=", 1))
	})
})
