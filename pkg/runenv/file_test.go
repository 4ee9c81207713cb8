package runenv_test

import (
	"github.com/animalet/runenv/pkg/runenv"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"
)

var _ = Describe("FileConfig", func() {
	const document = `
selector: DEPLOY_TARGET
strict: true
variables: [DATABASE_URL]
required: [URL]
derive:
  - primary: URL
    internal: URL_INTERNAL
profiles:
  production:
    description: Public site
    vars:
      URL: https://prod
  development:
    vars:
      URL: https://dev
`

	var file runenv.FileConfig

	BeforeEach(func() {
		file = runenv.FileConfig{}
		Expect(yaml.Unmarshal([]byte(document), &file)).To(Succeed())
	})

	It("should map the file onto a resolver configuration", func() {
		Expect(file.Validate()).To(Succeed())

		cfg := file.Config()
		Expect(cfg.Selector).To(Equal("DEPLOY_TARGET"))
		Expect(cfg.Strict).To(BeTrue())
		Expect(cfg.Variables).To(Equal([]string{"DATABASE_URL"}))
		Expect(cfg.Environments).To(HaveLen(2))
		Expect(cfg.Environments["production"].Description).To(Equal("Public site"))
		Expect(cfg.Environments["development"].Vars).To(HaveKeyWithValue("URL", "https://dev"))
		Expect(cfg.Validator).NotTo(BeNil())
		Expect(file.URLPairs()).To(Equal([]runenv.URLPair{{Primary: "URL", Internal: "URL_INTERNAL"}}))
	})

	It("should turn the required list into a validator", func() {
		cfg := file.Config()
		cfg.Environments["production"] = runenv.EnvironmentConfig{Vars: map[string]string{"NAME": "x"}}
		env := runenv.NewMapEnvironment(map[string]string{"DEPLOY_TARGET": "production"})

		_, err := runenv.Resolve(cfg, env)
		Expect(err).To(MatchError("required environment variable URL is not set"))
	})

	It("should default to the built-in URL pair", func() {
		Expect(runenv.FileConfig{}.URLPairs()).To(Equal([]runenv.URLPair{runenv.DefaultURLPair}))
	})

	DescribeTable("rejecting invalid files",
		func(mutate func(*runenv.FileConfig), message string) {
			mutate(&file)
			Expect(file.Validate()).To(MatchError(ContainSubstring(message)))
		},
		Entry("variable with '='", func(f *runenv.FileConfig) {
			f.Profiles["production"].Vars["A=B"] = "x"
		}, "forbidden characters"),
		Entry("empty profile name", func(f *runenv.FileConfig) {
			f.Profiles[" "] = runenv.FileProfile{}
		}, "profile name"),
		Entry("empty extra variable", func(f *runenv.FileConfig) {
			f.Variables = append(f.Variables, "")
		}, "invalid entry in variables"),
		Entry("incomplete derive entry", func(f *runenv.FileConfig) {
			f.Derive = []runenv.URLPair{{Primary: "URL"}}
		}, "must set both"),
		Entry("self derivation", func(f *runenv.FileConfig) {
			f.Derive = []runenv.URLPair{{Primary: "URL", Internal: "URL"}}
		}, "from itself"),
		Entry("selector with spaces", func(f *runenv.FileConfig) {
			f.Selector = "APP ENV"
		}, "invalid selector"),
	)
})
