package runenv_test

import (
	"github.com/animalet/runenv/pkg/runenv"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
)

var _ = Describe("Config", func() {
	Context("Merge", func() {
		var defaults runenv.Config

		BeforeEach(func() {
			defaults = runenv.Defaults()
			defaults.Environments["production"] = runenv.EnvironmentConfig{Vars: map[string]string{"URL": "https://builtin"}}
			defaults.Variables = []string{"DATABASE_URL"}
		})

		It("should keep defaults for empty override fields", func() {
			merged, err := runenv.Merge(defaults, runenv.Config{})
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Selector).To(Equal(runenv.DefaultSelector))
			Expect(merged.Variables).To(Equal([]string{"DATABASE_URL"}))
			Expect(merged.Environments).To(HaveKey(runenv.EnvironmentName("production")))
		})

		It("should let non-empty override fields win", func() {
			validator := runenv.RequireVars("URL")
			merged, err := runenv.Merge(defaults, runenv.Config{
				Selector:  "DEPLOY_TARGET",
				Debug:     true,
				Variables: []string{"CACHE_URL"},
				Validator: validator,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Selector).To(Equal("DEPLOY_TARGET"))
			Expect(merged.Debug).To(BeTrue())
			Expect(merged.Variables).To(Equal([]string{"CACHE_URL"}))
			Expect(merged.Validator).NotTo(BeNil())
		})

		It("should merge profiles by name", func() {
			merged, err := runenv.Merge(defaults, runenv.Config{
				Environments: map[runenv.EnvironmentName]runenv.EnvironmentConfig{
					"production":  {Vars: map[string]string{"URL": "https://file"}},
					"development": {Vars: map[string]string{"URL": "http://localhost"}},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Environments).To(HaveLen(2))
			Expect(merged.Environments["production"].Vars).To(HaveKeyWithValue("URL", "https://file"))
			Expect(merged.Environments["development"].Vars).To(HaveKeyWithValue("URL", "http://localhost"))
		})

		It("should not modify its arguments", func() {
			override := runenv.Config{
				Environments: map[runenv.EnvironmentName]runenv.EnvironmentConfig{
					"staging": {Vars: map[string]string{"URL": "https://staging"}},
				},
			}
			merged, err := runenv.Merge(defaults, override)
			Expect(err).NotTo(HaveOccurred())

			merged.Environments["staging"].Vars["URL"] = "changed"
			merged.Environments["production"].Vars["URL"] = "changed"

			Expect(defaults.Environments).NotTo(HaveKey(runenv.EnvironmentName("staging")))
			Expect(defaults.Environments["production"].Vars["URL"]).To(Equal("https://builtin"))
			Expect(override.Environments["staging"].Vars["URL"]).To(Equal("https://staging"))
		})
	})

	Context("GovernedKeys", func() {
		It("should list profile variables and extra variables once", func() {
			cfg := runenv.Config{
				Environments: map[runenv.EnvironmentName]runenv.EnvironmentConfig{
					"production": {Vars: map[string]string{"URL": "x", "NAME": "y"}},
				},
				Variables: []string{"URL", "DATABASE_URL"},
			}
			Expect(cfg.GovernedKeys("production")).To(Equal([]string{"DATABASE_URL", "NAME", "URL"}))
			Expect(cfg.GovernedKeys("staging")).To(Equal([]string{"DATABASE_URL", "URL"}))
		})
	})

	Context("Validators", func() {
		It("should report every missing variable", func() {
			err := runenv.RequireVars("A", "B", "C").Validate(runenv.Environment{"B": "set", "C": ""})
			var missing *runenv.MissingVarsError
			Expect(errors.As(err, &missing)).To(BeTrue())
			Expect(missing.Names).To(Equal([]string{"A", "C"}))
			Expect(err.Error()).To(Equal("required environment variables are not set: A, C"))
		})

		It("should stop at the first failing validator", func() {
			calls := 0
			first := runenv.ValidatorFunc(func(runenv.Environment) error {
				calls++
				return errors.New("first")
			})
			second := runenv.ValidatorFunc(func(runenv.Environment) error {
				calls++
				return nil
			})
			err := runenv.Validators(first, nil, second).Validate(runenv.Environment{})
			Expect(err).To(MatchError("first"))
			Expect(calls).To(Equal(1))
		})

		It("should pass when every validator passes", func() {
			Expect(runenv.Validators(runenv.RequireVars("A")).Validate(runenv.Environment{"A": "1"})).To(Succeed())
		})
	})
})
