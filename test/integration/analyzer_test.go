//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/usecase"
	"github.com/eliteGoblin/focusd/lockin/test/fixtures"
)

const testModel = usecase.DefaultModel

// captionReply answers a stage 1 request with one caption per image.
func captionReply(req fixtures.GenerateRequest) string {
	parts := make([]string, len(req.Images))
	for i := range req.Images {
		parts[i] = fmt.Sprintf(`"desc_image%d": "A YouTube video of cats playing piano, frame %d"`, i+1, i+1)
	}
	return "```json\n{" + strings.Join(parts, ", ") + "}\n```"
}

func domainRequest(images []string, topic string) domain.AnalyzeRequest {
	return domain.AnalyzeRequest{ImagePaths: images, WorkTopic: topic}
}

func newClient(ctx context.Context, fake *fixtures.FakeOllama, autoPull bool) *infra.OllamaClient {
	cfg := infra.DefaultOllamaConfig()
	cfg.BaseURL = fake.URL()
	cfg.Timeout = 10 * time.Second
	cfg.AutoStart = false
	cfg.AutoPull = autoPull

	client, err := infra.NewOllamaClientWithDeps(ctx, cfg, nil, infra.NewModelCache(time.Minute),
		&infra.RealCommandRunner{}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	return client
}

var _ = Describe("Two-stage analysis", func() {
	var (
		ctx    context.Context
		tmpDir string
		images []string
		fake   *fixtures.FakeOllama
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		tmpDir, err = os.MkdirTemp("", "lockin-integration-*")
		Expect(err).NotTo(HaveOccurred())

		images = nil
		for i := 0; i < 2; i++ {
			path, err := fixtures.WritePNG(tmpDir, fmt.Sprintf("shot_%d.png", i), 1600, 900)
			Expect(err).NotTo(HaveOccurred())
			images = append(images, path)
		}

		fake = fixtures.NewFakeOllama(testModel)
	})

	AfterEach(func() {
		fake.Close()
		os.RemoveAll(tmpDir)
	})

	Context("when the model answers in JSON", func() {
		It("should report a distracted verdict", func() {
			fake.Responder = func(req fixtures.GenerateRequest) string {
				if len(req.Images) > 0 {
					return captionReply(req)
				}
				return `{"Reasoning": "Cat videos are unrelated to the thesis", "Distracted": true, "Confidence": 88}`
			}

			analyzer := usecase.NewAnalyzer(newClient(ctx, fake, false), usecase.DefaultAnalyzerConfig(), zap.NewNop())
			result := analyzer.Analyze(ctx, domainRequest(images, "writing a thesis"))

			Expect(result.Errors).To(BeEmpty())
			Expect(result.Stage1.Descriptions).To(HaveLen(2))
			Expect(result.Stage1.Descriptions[0]).To(ContainSubstring("cats playing piano"))
			Expect(result.IsDistracted(60)).To(BeTrue())
			Expect(*result.Stage2.Confidence).To(Equal(88))

			reqs := fake.Recorded()
			Expect(reqs).To(HaveLen(2))

			By("sending both screenshots, downscaled, in one vision request")
			Expect(reqs[0].Images).To(HaveLen(2))
			Expect(reqs[0].Think).NotTo(BeNil())
			Expect(*reqs[0].Think).To(BeFalse())

			By("judging the captions in a text request with stop sequences")
			Expect(reqs[1].Images).To(BeEmpty())
			Expect(reqs[1].Prompt).To(ContainSubstring("writing a thesis"))
			Expect(reqs[1].Stop).NotTo(BeEmpty())
		})
	})

	Context("when stage 2 rambles", func() {
		It("should recover through the reparse request", func() {
			stage2 := []string{
				"Well, the user seems to be watching cats. I think they are distracted.",
				`{"Reasoning": "Watching cats", "Distracted": true, "Confidence": 75}`,
			}
			fake.Responder = func(req fixtures.GenerateRequest) string {
				if len(req.Images) > 0 {
					return captionReply(req)
				}
				reply := stage2[0]
				if len(stage2) > 1 {
					stage2 = stage2[1:]
				}
				return reply
			}

			analyzer := usecase.NewAnalyzer(newClient(ctx, fake, false), usecase.DefaultAnalyzerConfig(), zap.NewNop())
			result := analyzer.Analyze(ctx, domainRequest(images, "writing a thesis"))

			Expect(fake.Recorded()).To(HaveLen(3))
			Expect(result.HasVerdict()).To(BeTrue())
			Expect(*result.Stage2.Distracted).To(BeTrue())
			Expect(*result.Stage2.Confidence).To(Equal(75))
			Expect(result.Errors).To(HaveLen(1))
		})

		It("should fall back to the conclusion line when nothing parses", func() {
			fake.Responder = func(req fixtures.GenerateRequest) string {
				if len(req.Images) > 0 {
					return captionReply(req)
				}
				return "The screen shows entertainment.\n-Final Conclusion: Distracted"
			}

			analyzer := usecase.NewAnalyzer(newClient(ctx, fake, false), usecase.DefaultAnalyzerConfig(), zap.NewNop())
			result := analyzer.Analyze(ctx, domainRequest(images, "writing a thesis"))

			Expect(result.HasVerdict()).To(BeTrue())
			Expect(*result.Stage2.Distracted).To(BeTrue())
			Expect(*result.Stage2.Confidence).To(Equal(usecase.DefaultConfidence))
		})
	})

	Context("when the model is not installed", func() {
		It("should pull it before generating", func() {
			fake.Models = nil
			fake.Responder = func(req fixtures.GenerateRequest) string {
				if len(req.Images) > 0 {
					return captionReply(req)
				}
				return `{"Reasoning": "Docs", "Distracted": false, "Confidence": 90}`
			}

			analyzer := usecase.NewAnalyzer(newClient(ctx, fake, true), usecase.DefaultAnalyzerConfig(), zap.NewNop())
			result := analyzer.Analyze(ctx, domainRequest(images, "writing a thesis"))

			Expect(fake.Pulls).To(ContainElement(testModel))
			Expect(result.HasVerdict()).To(BeTrue())
			Expect(result.IsDistracted(60)).To(BeFalse())
		})
	})

	Context("when the caller cancels mid-stream", func() {
		It("should mark the result cancelled", func() {
			fake.StreamHold = make(chan struct{})
			defer close(fake.StreamHold)
			fake.Responder = captionReply

			runCtx, cancel := context.WithCancel(ctx)
			time.AfterFunc(100*time.Millisecond, cancel)

			req := domainRequest(images, "writing a thesis")
			req.CancelCheck = func() bool { return runCtx.Err() != nil }

			analyzer := usecase.NewAnalyzer(newClient(ctx, fake, false), usecase.DefaultAnalyzerConfig(), zap.NewNop())
			result := analyzer.Analyze(runCtx, req)

			Expect(result.Cancelled).To(BeTrue())
			Expect(result.HasVerdict()).To(BeFalse())
		})
	})
})
