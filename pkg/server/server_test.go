package server_test

import (
	"fmt"
	"io"
	"net/http"

	"github.com/animalet/runenv/pkg/config"
	"github.com/animalet/runenv/pkg/runenv"
	"github.com/animalet/runenv/pkg/server"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
)

type pingConfig struct {
	Path  string `yaml:"path"`
	Reply string `yaml:"reply"`
}

func (c pingConfig) Validate() error {
	if c.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

type pingController struct {
	cfg     pingConfig
	env     runenv.Selection
	bindErr error
	closed  *bool
}

func (p *pingController) Bind(engine *gin.Engine) error {
	if p.bindErr != nil {
		return p.bindErr
	}
	engine.GET(p.cfg.Path, func(c *gin.Context) {
		c.String(http.StatusOK, "%s:%s", p.cfg.Reply, p.env.Name)
	})
	return nil
}

func (p *pingController) Close() error {
	if p.closed != nil {
		*p.closed = true
	}
	return nil
}

var _ = Describe("Server", func() {
	var (
		cfg    server.Config
		closed bool
	)

	selection := runenv.Selection{Name: "staging", Selector: runenv.DefaultSelector, Known: true}

	get := func(s *server.Server, path string) (int, string) {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", s.Addr(), path))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(body)
	}

	BeforeEach(func() {
		closed = false
		server.RegisterController("ping", func(c *pingConfig, ctx server.ControllerContext) (server.IController, error) {
			return &pingController{cfg: *c, env: ctx.Environment, closed: &closed}, nil
		})
		server.AddControllerType("broken-bind", func(config.ModuleRawConfig, server.ControllerContext) (server.IController, error) {
			return &pingController{bindErr: errors.New("no routes")}, nil
		})
		server.AddControllerType("panicking", func(config.ModuleRawConfig, server.ControllerContext) (server.IController, error) {
			panic("boom")
		})

		cfg = server.Config{
			Address: "127.0.0.1:0",
			Controllers: server.ControllerBindings{
				{TypeName: "ping", Config: config.ModuleRawConfig("path: /ping\nreply: pong\n")},
			},
		}
	})

	Context("Lifecycle", func() {
		It("should serve controller routes and run shutdown hooks", func() {
			s := server.NewServer(cfg, selection)
			Expect(s.Addr()).To(BeNil())
			Expect(s.Start()).To(Succeed())

			status, body := get(s, "/ping")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(Equal("pong:staging"))

			hookCalled := false
			s.AddShutdownHook(func() error {
				hookCalled = true
				return nil
			})

			Expect(s.Shutdown()).To(Succeed())
			Expect(closed).To(BeTrue())
			Expect(hookCalled).To(BeTrue())
		})

		It("should refuse to start twice", func() {
			s := server.NewServer(cfg, selection)
			Expect(s.Start()).To(Succeed())
			DeferCleanup(s.Shutdown)

			Expect(s.Start()).To(MatchError("server already started"))
		})

		It("should fail to shut down a server that never started", func() {
			Expect(server.NewServer(cfg, selection).Shutdown()).To(MatchError("server not started"))
		})

		It("should report listen errors", func() {
			first := server.NewServer(cfg, selection)
			Expect(first.Start()).To(Succeed())
			DeferCleanup(first.Shutdown)

			cfg.Address = first.Addr().String()
			second := server.NewServer(cfg, selection)
			Expect(second.Start()).To(MatchError(ContainSubstring("unable to listen on")))
			Expect(closed).To(BeTrue())
		})
	})

	Context("Controllers", func() {
		It("should exclude controllers that fail without stopping the others", func() {
			cfg.Controllers = append(cfg.Controllers,
				server.ControllerBinding{TypeName: "unknown", Config: config.ModuleRawConfig("{}")},
				server.ControllerBinding{TypeName: "ping", Name: "invalid", Config: config.ModuleRawConfig("reply: x")},
				server.ControllerBinding{TypeName: "broken-bind", Config: config.ModuleRawConfig("{}")},
				server.ControllerBinding{TypeName: "panicking", Config: config.ModuleRawConfig("{}")},
			)

			s := server.NewServer(cfg, selection)
			Expect(s.Start()).To(Succeed())
			DeferCleanup(s.Shutdown)

			status, _ := get(s, "/ping")
			Expect(status).To(Equal(http.StatusOK))
		})

		It("should keep its own copy of the configuration", func() {
			s := server.NewServer(cfg, selection)
			cfg.Controllers[0].Config = config.ModuleRawConfig("path: /changed\n")

			Expect(s.Start()).To(Succeed())
			DeferCleanup(s.Shutdown)

			status, _ := get(s, "/ping")
			Expect(status).To(Equal(http.StatusOK))
		})

		It("should install the security and request id middleware", func() {
			s := server.NewServer(cfg, selection)
			Expect(s.Start()).To(Succeed())
			DeferCleanup(s.Shutdown)

			resp, err := http.Get(fmt.Sprintf("http://%s/ping", s.Addr()))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("X-Frame-Options")).To(Equal("DENY"))
			Expect(resp.Header.Get("Content-Security-Policy")).To(Equal(server.DefaultContentSecurityPolicy))
			Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
		})

		It("should track registered types", func() {
			Expect(server.IsControllerTypeRegistered("ping")).To(BeTrue())
			Expect(server.IsControllerTypeRegistered("nope")).To(BeFalse())
		})
	})

	Context("Config", func() {
		DescribeTable("validation",
			func(mutate func(*server.Config), message string) {
				mutate(&cfg)
				err := cfg.Validate()
				if message == "" {
					Expect(err).NotTo(HaveOccurred())
				} else {
					Expect(err).To(MatchError(ContainSubstring(message)))
				}
			},
			Entry("valid", func(*server.Config) {}, ""),
			Entry("empty address", func(c *server.Config) { c.Address = "" }, "address must be set"),
			Entry("bad address", func(c *server.Config) { c.Address = "localhost:notaport" }, "invalid address"),
			Entry("trusted proxy CIDR", func(c *server.Config) { c.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"} }, ""),
			Entry("bad trusted proxy", func(c *server.Config) { c.TrustedProxies = []string{"proxy"} }, "invalid trusted proxy"),
			Entry("binding without type", func(c *server.Config) {
				c.Controllers = append(c.Controllers, server.ControllerBinding{Config: config.ModuleRawConfig("{}")})
			}, "controller type must be set"),
			Entry("binding without config", func(c *server.Config) {
				c.Controllers = append(c.Controllers, server.ControllerBinding{TypeName: "ping"})
			}, "controller config must be provided"),
		)

		It("should decode from a configuration module with placeholders", func() {
			GinkgoT().Setenv("RUNENV_SERVER_TEST_PORT", "4321")
			parsed, err := config.Parse([]byte(`
server:
  address: "127.0.0.1:${RUNENV_SERVER_TEST_PORT}"
  controllers:
    - type: ping
      config:
        path: /ping
`), config.YamlFormat)
			Expect(err).NotTo(HaveOccurred())

			srv, err := config.Get[server.Config](parsed, "server")
			Expect(err).NotTo(HaveOccurred())
			Expect(srv.Address).To(Equal("127.0.0.1:4321"))
			Expect(srv.Controllers).To(HaveLen(1))
			Expect(string(srv.Controllers[0].Config)).To(ContainSubstring("path: /ping"))
		})
	})
})
