package ingest

import (
	"context"

	"github.com/Scusemua/go-utils/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var testLog = config.GetLogger("")

type stubAdapter struct {
	backendLinks map[string]string
	backends     map[string]map[string]string
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{
		backendLinks: make(map[string]string),
		backends:     make(map[string]map[string]string),
	}
}

func (s *stubAdapter) GetBackendLink(_ context.Context, app string) (string, error) {
	return s.backendLinks[app], nil
}
func (s *stubAdapter) GetBackend(_ context.Context, name string) (map[string]string, error) {
	return s.backends[name], nil
}
func (s *stubAdapter) GetRetrainDataIDs(_ context.Context, app string, fromUs, toUs int64) ([]string, error) {
	return nil, nil
}
func (s *stubAdapter) AddRetrainData(_ context.Context, tsUs int64, data [][]float64) (string, bool) {
	return "", true
}
func (s *stubAdapter) AddAppDataLink(_ context.Context, app string, tsUs int64, dataID string) bool {
	return true
}
func (s *stubAdapter) AddBackend(_ context.Context, name, version, policy string, alpha, beta, weight float64, connectionID int32) bool {
	return true
}
func (s *stubAdapter) SetBackendLink(_ context.Context, app, backend string) bool { return true }
func (s *stubAdapter) ApplicationExists(_ context.Context, app string) (bool, error) {
	return false, nil
}
func (s *stubAdapter) SubscribeAppBackendLinkChanges(_ context.Context, _ func(key, event string)) {}

var _ = Describe("Facade", func() {
	It("wires a non-nil checker and transport", func() {
		f := New(newStubAdapter(), testLog)
		Expect(f.checker).NotTo(BeNil())
		Expect(f.transport).NotTo(BeNil())
	})

	It("delegates ManualRetrain to the checker, resolving -1 with no history", func() {
		adapter := newStubAdapter()
		f := New(adapter, testLog)

		ctx := context.Background()
		f.checker.Start(ctx)
		defer f.checker.Stop()

		result, err := f.ManualRetrain(ctx, "unknown-app").Result()
		Expect(err).To(BeNil())
		Expect(result).To(Equal(int64(-1)))
	})

	It("delegates UpdateRetrainTriggerData to the checker", func() {
		adapter := newStubAdapter()
		adapter.backendLinks["app1"] = "backend1"
		adapter.backends["backend1"] = map[string]string{
			"policy": "ManualPolicy",
			"alpha":  "1", "beta": "1", "weight": "10",
			"zmq_connection_id": "0",
		}

		f := New(adapter, testLog)
		ctx := context.Background()
		f.checker.Start(ctx)
		defer f.checker.Stop()

		ok, err := f.UpdateRetrainTriggerData(ctx, "app1", 1_000_000, 5).Result()
		Expect(err).To(BeNil())
		Expect(ok).To(Equal(true))
	})
})
