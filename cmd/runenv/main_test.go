package main

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
)

var _ = Describe("Command-Line Argument Parsing", func() {
	Describe("parseFlags", func() {
		It("should parse config and debug flags", func() {
			opts, err := parseFlags([]string{"--config", "/path/to/runenv.yaml", "--debug"})
			Expect(err).NotTo(HaveOccurred())
			Expect(opts.configPath).To(Equal("/path/to/runenv.yaml"))
			Expect(opts.debug).To(BeTrue())
			Expect(opts.print).To(BeFalse())
			Expect(opts.check).To(BeFalse())
		})

		It("should parse the dry-run flags", func() {
			opts, err := parseFlags([]string{"-print", "-check"})
			Expect(err).NotTo(HaveOccurred())
			Expect(opts.print).To(BeTrue())
			Expect(opts.check).To(BeTrue())
		})

		It("should parse version flag", func() {
			opts, err := parseFlags([]string{"--version"})
			Expect(err).NotTo(HaveOccurred())
			Expect(opts.showVersion).To(BeTrue())
		})

		It("should parse help flags", func() {
			for _, flag := range []string{"--help", "-h"} {
				opts, err := parseFlags([]string{flag})
				Expect(err).NotTo(HaveOccurred())
				Expect(opts.showHelp).To(BeTrue())
			}
		})

		It("should return error for invalid flag", func() {
			_, err := parseFlags([]string{"--invalid-flag"})
			Expect(err).To(HaveOccurred())
		})

		It("should handle no flags", func() {
			opts, err := parseFlags([]string{})
			Expect(err).NotTo(HaveOccurred())
			Expect(opts.configPath).To(BeEmpty())
		})
	})

	Describe("printUsage", func() {
		It("should describe every flag and setting", func() {
			var buf bytes.Buffer
			printUsage(&buf)

			output := buf.String()
			Expect(output).To(ContainSubstring("Usage: runenv"))
			for _, fragment := range []string{"--config", "--debug", "--print", "--check", "--version", "--help", "RUNENV_CONFIG", "RUNENV_DOTENV", "RUNTIME_<NAME>"} {
				Expect(output).To(ContainSubstring(fragment))
			}
		})
	})

	Describe("runWithArgs", func() {
		It("should succeed for help and version", func() {
			Expect(runWithArgs([]string{"--help"})).To(Equal(exitSuccess))
			Expect(runWithArgs([]string{"--version"})).To(Equal(exitSuccess))
		})

		It("should fail with invalid flag", func() {
			Expect(runWithArgs([]string{"--invalid"})).To(Equal(exitError))
		})
	})
})

var _ = Describe("Logging Setup", func() {
	AfterEach(func() {
		setupLogging(false)
	})

	It("should set debug level when debug mode is enabled", func() {
		setupLogging(true)
		Expect(zerolog.GlobalLevel()).To(Equal(zerolog.DebugLevel))
	})

	It("should set info level when debug mode is disabled", func() {
		setupLogging(false)
		Expect(zerolog.GlobalLevel()).To(Equal(zerolog.InfoLevel))
	})
})
