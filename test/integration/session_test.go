//go:build integration

package integration

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/daemon"
	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
)

var _ = Describe("Session history", func() {
	var (
		tmpDir string
		store  *infra.EncryptedSessionStore
		key    []byte
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "lockin-sessions-*")
		Expect(err).NotTo(HaveOccurred())

		key, err = infra.EnsureKey(infra.NewFileKeyProvider(tmpDir))
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.NewSessionStore(filepath.Join(tmpDir, "sessions.db"), key)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	It("should persist a finished session with its counters", func() {
		tracker := daemon.NewSessionTracker("deep-work", "thesis", store, zap.NewNop())
		tracker.RecordDistraction(domain.AlertCache)
		tracker.RecordAlert()
		tracker.RecordDistraction(domain.AlertAnalysis)
		tracker.RecordAnalysisError()

		finished, err := tracker.Finish()
		Expect(err).NotTo(HaveOccurred())

		got, err := store.Get(tracker.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Profile).To(Equal("deep-work"))
		Expect(got.DistractionCount).To(Equal(2))
		Expect(got.CacheHits).To(Equal(1))
		Expect(got.AlertCount).To(Equal(1))
		Expect(got.AnalysisErrors).To(Equal(1))
		Expect(got.EndedAt.UnixMilli()).To(Equal(finished.EndedAt.UnixMilli()))
	})

	It("should reopen the database with the stored key", func() {
		tracker := daemon.NewSessionTracker("deep-work", "thesis", store, zap.NewNop())
		_, err := tracker.Finish()
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		reloadedKey, err := infra.NewFileKeyProvider(tmpDir).GetKey()
		Expect(err).NotTo(HaveOccurred())
		Expect(reloadedKey).To(Equal(key))

		store, err = infra.NewSessionStore(filepath.Join(tmpDir, "sessions.db"), reloadedKey)
		Expect(err).NotTo(HaveOccurred())

		sessions, err := store.List(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].ID).To(Equal(tracker.ID()))
	})
})
