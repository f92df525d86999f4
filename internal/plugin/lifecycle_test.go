// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	plugins "github.com/paneplug/paneplug/internal/plugin"
	"github.com/paneplug/paneplug/internal/plugin/plugintest"
	"github.com/paneplug/paneplug/pkg/plugin"
)

var _ = Describe("Plugin lifecycle", func() {
	var (
		ctx    context.Context
		loader *plugintest.Loader
		r      *plugins.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		loader = plugintest.NewLoader()
		for _, p := range []string{"a", "b", "c"} {
			loader.Add(p, plugintest.NewCounter(p, loader.Journal))
		}
		r = plugins.NewRegistry(loader)
		DeferCleanup(func() { _ = r.Close() })
	})

	Describe("Loading", func() {
		It("lists a loaded plugin exactly once", func() {
			id, err := r.Load(ctx, "a")
			Expect(err).NotTo(HaveOccurred())

			var ids []plugins.ID
			for _, e := range r.List() {
				ids = append(ids, e.ID)
			}
			Expect(ids).To(Equal([]plugins.ID{id}))
		})

		It("leaves the registry untouched when the library cannot be opened", func() {
			_, err := r.Load(ctx, "missing")
			Expect(err).To(MatchError(plugins.ErrCannotOpen))
			Expect(r.Len()).To(BeZero())
			Expect(loader.Journal.Events()).To(BeEmpty())
		})

		It("releases the library when the entry point yields nothing", func() {
			loader.Add("empty", func() plugin.Plugin { return nil })
			_, err := r.Load(ctx, "empty")
			Expect(err).To(MatchError(plugins.ErrInvalidInstance))
			Expect(loader.Journal.Events()).To(Equal([]string{"release:empty"}))
		})
	})

	Describe("Unloading", func() {
		It("drops the instance before releasing its library", func() {
			id, err := r.Load(ctx, "b")
			Expect(err).NotTo(HaveOccurred())

			Expect(r.Unload(id)).To(Succeed())
			Expect(loader.Journal.Events()).To(Equal([]string{"open:b", "drop:b", "release:b"}))
		})

		It("treats unknown ids as a no-op", func() {
			Expect(r.Unload(42)).To(Succeed())
			Expect(r.Update(ctx, 42, plugin.Wrap(plugintest.Add))).To(BeEmpty())
		})
	})

	Describe("Closing", func() {
		It("tears down every plugin and continues past failures", func() {
			loader.FailRelease("b", errors.New("release b"))
			for _, p := range []string{"a", "b", "c"} {
				_, err := r.Load(ctx, p)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(r.Close()).To(MatchError(ContainSubstring("release b")))
			Expect(r.Len()).To(BeZero())
			Expect(loader.Journal.Events()).To(ContainElements(
				"drop:a", "release:a", "drop:b", "release:b", "drop:c", "release:c",
			))
		})
	})

	Describe("Discovery", func() {
		var dir string

		writeManifest := func(name, body string) {
			pluginDir := filepath.Join(dir, name)
			Expect(os.MkdirAll(pluginDir, 0o750)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(pluginDir, plugins.ManifestFile), []byte(body), 0o600)).To(Succeed())
		}

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			writeManifest("counter", "name: counter\nversion: 1.0.0\ntype: native\nentry: counter.so\n")
			writeManifest("clock", "name: clock\nversion: 1.0.0\ntype: binary\nentry: clock\nid: 3\n")
			writeManifest("broken", "name: Broken\n")
			Expect(os.WriteFile(filepath.Join(dir, "README"), []byte("not a plugin"), 0o600)).To(Succeed())
		})

		It("finds valid plugins sorted by name and skips broken ones", func() {
			found, err := plugins.Discover(ctx, dir, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
			Expect(found[0].Manifest.Name).To(Equal("clock"))
			Expect(found[1].Manifest.Name).To(Equal("counter"))
			Expect(found[1].Dir).To(Equal(filepath.Join(dir, "counter")))
		})

		It("loads pinned ids before assigning free ones", func() {
			found, err := plugins.Discover(ctx, dir, nil)
			Expect(err).NotTo(HaveOccurred())

			byDir := plugintest.NewLoader()
			for _, dp := range found {
				byDir.Add(dp.Dir, plugintest.NewCounter(dp.Manifest.Name, byDir.Journal))
			}
			reg := plugins.NewRegistry(byDir)
			DeferCleanup(func() { _ = reg.Close() })

			results := plugins.LoadAll(ctx, reg, found)
			Expect(results).To(HaveLen(2))
			Expect(results[0].Plugin.Manifest.Name).To(Equal("clock"))
			Expect(results[0].ID).To(Equal(plugins.ID(3)))
			Expect(results[1].ID).To(Equal(plugins.ID(0)))
			for _, res := range results {
				Expect(res.Err).NotTo(HaveOccurred())
			}
		})

		It("records failures without stopping", func() {
			found, err := plugins.Discover(ctx, dir, nil)
			Expect(err).NotTo(HaveOccurred())

			results := plugins.LoadAll(ctx, r, found)
			Expect(results).To(HaveLen(2))
			for _, res := range results {
				Expect(res.Err).To(MatchError(plugins.ErrCannotOpen))
			}
		})
	})
})
