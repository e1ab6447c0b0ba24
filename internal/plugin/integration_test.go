// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package plugin_test

import (
	"context"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/extkit/internal/plugin"
	"github.com/holomush/extkit/internal/plugin/capability"
	"github.com/holomush/extkit/internal/plugin/hostfunc"
	pluginlua "github.com/holomush/extkit/internal/plugin/lua"
)

// sharedState is a concurrency-safe StateAccess.
type sharedState struct {
	mu     sync.Mutex
	values map[string]any
}

func (s *sharedState) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *sharedState) value(key string) any {
	v, _ := s.Get(key)
	return v
}

func (s *sharedState) Set(_ context.Context, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// recordingEmitter captures emitted event names.
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) Emit(_ context.Context, event string, _ ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

var _ = Describe("Bundled Lua plugins", func() {
	var (
		ctx      context.Context
		state    *sharedState
		emitter  *recordingEmitter
		registry *plugin.Registry
		manager  *plugin.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		state = &sharedState{values: map[string]any{}}
		emitter = &recordingEmitter{}
		enforcer := capability.NewEnforcer()
		hf := hostfunc.New(enforcer, hostfunc.WithState(state), hostfunc.WithEmitter(emitter))
		host := pluginlua.NewHost(pluginlua.WithFunctions(hf))
		manager = plugin.NewManager(filepath.Join("..", "..", "plugins"), plugin.WithLuaHost(host))

		discovered, err := manager.Discover(ctx)
		Expect(err).NotTo(HaveOccurred())
		for _, dp := range discovered {
			Expect(enforcer.SetGrants(dp.Manifest.Name, dp.Manifest.Capabilities)).To(Succeed())
		}
		registry = plugin.NewRegistry()
	})

	AfterEach(func() {
		Expect(manager.Close(ctx)).To(Succeed())
	})

	It("loads dependencies before dependents", func() {
		descriptors, err := manager.LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())

		names := make([]string, 0, len(descriptors))
		for _, d := range descriptors {
			names = append(names, d.Name)
		}
		Expect(names).To(Equal([]string{"counter", "greeter"}))
	})

	It("runs lifecycle callbacks through the registry", func() {
		descriptors, err := manager.LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		for _, d := range descriptors {
			Expect(registry.Register(ctx, d)).To(Succeed())
		}

		Expect(state.value("counter_started")).To(BeTrue())
		Expect(state.value("greeting")).To(Equal("hello, visitor 1"))
		Expect(emitter.Events()).To(ConsistOf("greeter.ready"))

		for _, name := range registry.DestroyOrder() {
			Expect(registry.Disable(ctx, name)).To(Succeed())
		}
		Expect(state.value("greeting")).To(Equal("goodbye"))
		Expect(state.value("counter_started")).To(BeFalse())
	})

	It("blocks disabling counter while greeter is enabled", func() {
		descriptors, err := manager.LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		for _, d := range descriptors {
			Expect(registry.Register(ctx, d)).To(Succeed())
		}

		err = registry.Disable(ctx, "counter")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("greeter"))
	})
})
