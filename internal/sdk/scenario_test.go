// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/extkit/internal/hook"
	"github.com/holomush/extkit/internal/plugin"
	"github.com/holomush/extkit/internal/sdk"
)

var _ = Describe("Manager lifecycle", func() {
	var (
		ctx     context.Context
		manager *sdk.Manager
		changes [][2]any
	)

	BeforeEach(func() {
		ctx = context.Background()
		changes = nil
		manager = sdk.New(ctx, sdk.Config{
			Name:         "scenario",
			InitialState: sdk.State{"count": 0},
			Plugins: []plugin.Descriptor{
				{Name: "p1", Version: "1.0.0", Enabled: true},
			},
		}, sdk.WithLogger(quietLogger()))

		manager.Hooks().On(hook.StateChange, func(_ context.Context, args ...any) error {
			next, prev := args[0].(sdk.State), args[1].(sdk.State)
			changes = append(changes, [2]any{next["count"], prev["count"]})
			return nil
		})
	})

	When("initialized", func() {
		BeforeEach(func() {
			Expect(manager.Initialize(ctx)).To(Succeed())
		})

		It("registers the configured plugin", func() {
			info := manager.Info()
			Expect(info.Initialized).To(BeTrue())
			Expect(info.PluginCount).To(Equal(1))
			Expect(info.EnabledPluginCount).To(Equal(1))

			p1, ok := manager.Plugins().Get("p1")
			Expect(ok).To(BeTrue())
			Expect(p1.Enabled).To(BeTrue())
		})

		It("re-emits state changes with next and previous values", func() {
			manager.State().SetState(ctx, sdk.State{"count": 1})

			Expect(changes).To(Equal([][2]any{{1, 0}}))
		})

		It("rejects a second Initialize", func() {
			err := manager.Initialize(ctx)
			Expect(err).To(MatchError(ContainSubstring("already initialized")))
		})

		It("tears everything down on Destroy", func() {
			manager.State().SetState(ctx, sdk.State{"count": 1})
			Expect(manager.Destroy(ctx)).To(Succeed())

			info := manager.Info()
			Expect(info.Destroyed).To(BeTrue())
			Expect(info.Initialized).To(BeFalse())
			Expect(info.PluginCount).To(BeZero())
			Expect(info.ListenerCount).To(BeZero())

			By("ignoring a second Destroy")
			Expect(manager.Destroy(ctx)).To(Succeed())

			By("refusing to initialize again")
			Expect(manager.Initialize(ctx)).NotTo(Succeed())
		})

		It("stops re-emitting after Destroy", func() {
			Expect(manager.Destroy(ctx)).To(Succeed())
			manager.State().SetState(ctx, sdk.State{"count": 5})

			Expect(changes).To(BeEmpty())
			Expect(manager.State().GetState()).To(HaveKeyWithValue("count", 5))
		})
	})

	When("not initialized", func() {
		It("refuses Reset", func() {
			Expect(manager.Reset(ctx)).To(MatchError(ContainSubstring("not initialized")))
		})

		It("can still be destroyed", func() {
			Expect(manager.Destroy(ctx)).To(Succeed())
			Expect(manager.Info().Destroyed).To(BeTrue())
		})
	})
})
