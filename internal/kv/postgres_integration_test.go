// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package kv_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/internal/state"
	"github.com/holomush/extkit/pkg/errutil"
)

var _ = Describe("Postgres medium", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		dsn       string
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("extkit_test"),
			postgres.WithUsername("extkit"),
			postgres.WithPassword("extkit"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("reports a missing schema before migrations run", func() {
		medium, err := kv.OpenPostgres(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(medium.Close()).To(Succeed()) }()

		_, _, err = medium.Get(ctx, "extkit-state")
		Expect(err).To(HaveOccurred())
		Expect(errutil.Code(err)).To(Equal(kv.CodeSchemaMissing))
	})

	It("migrates up and reports versions", func() {
		migrator, err := kv.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(migrator.Close()).To(Succeed()) }()

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).NotTo(BeEmpty())

		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Up()).To(Succeed(), "second Up is a no-op")

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(version).To(Equal(pending[len(pending)-1]))

		pending, err = migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("stores, overwrites and deletes values", func() {
		medium, err := kv.OpenPostgres(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(medium.Close()).To(Succeed()) }()

		Expect(medium.Set(ctx, "k", "one")).To(Succeed())
		Expect(medium.Set(ctx, "k", "two")).To(Succeed())

		value, ok, err := medium.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("two"))

		Expect(medium.Delete(ctx, "k")).To(Succeed())
		_, ok, err = medium.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("hydrates a store written by an earlier store", func() {
		medium, err := kv.OpenPostgres(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(medium.Close()).To(Succeed()) }()

		first := state.New(ctx, map[string]any{"count": 0.0},
			state.WithPersistence[map[string]any](medium, "extkit-state"))
		first.SetState(ctx, map[string]any{"count": 7.0})

		second := state.New(ctx, map[string]any{"count": 0.0, "label": "x"},
			state.WithPersistence[map[string]any](medium, "extkit-state"))
		Expect(second.GetState()).To(Equal(map[string]any{"count": 7.0, "label": "x"}))
	})

	It("rolls back cleanly", func() {
		migrator, err := kv.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(migrator.Close()).To(Succeed()) }()

		Expect(migrator.Down()).To(Succeed())
		applied, err := migrator.AppliedMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeEmpty())
	})
})
