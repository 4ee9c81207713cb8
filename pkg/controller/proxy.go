package controller

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/animalet/runenv/pkg/server"
	"github.com/animalet/runenv/pkg/server/middleware"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProxyControllerConfig forwards a path prefix to one or more backend endpoints.
// Endpoints usually come from resolved variables, e.g. ${API_URL_INTERNAL}.
type ProxyControllerConfig struct {
	Path        string        `yaml:"path"`
	Endpoints   []string      `yaml:"endpoints"`
	StripPrefix bool          `yaml:"strip_prefix,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

func (p ProxyControllerConfig) Validate() error {
	if len(p.Endpoints) == 0 {
		return errors.New("at least one endpoint must be provided")
	}

	if p.Path == "" || !strings.HasPrefix(p.Path, "/") {
		return errors.New("path must be set and start with '/'")
	}

	for _, endpoint := range p.Endpoints {
		if _, err := parseEndpoint(endpoint); err != nil {
			return err
		}
	}
	return nil
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint URL: %s", endpoint)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("invalid endpoint URL: %s, expected http(s)://host[:port][/path]", endpoint)
	}
	return u, nil
}

func NewProxyController(c *ProxyControllerConfig, _ server.ControllerContext) (server.IController, error) {
	endpoints := make([]url.URL, 0, len(c.Endpoints))
	for _, endpoint := range c.Endpoints {
		u, err := parseEndpoint(endpoint)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to configure proxy for path %s", c.Path)
		}
		endpoints = append(endpoints, *u)
	}

	log.Info().
		Str("path", c.Path).
		Strs("endpoints", c.Endpoints).
		Bool("strip_prefix", c.StripPrefix).
		Msg("Proxy configured")

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &proxy{
		endpoints: endpoints,
		transport: transport,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   c.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		prefix:      strings.TrimSuffix(c.Path, "/"),
		stripPrefix: c.StripPrefix,
	}, nil
}

// proxy forwards requests round-robin across its endpoints.
type proxy struct {
	endpoints     []url.URL
	endpointIndex int
	mu            sync.Mutex
	transport     *http.Transport
	httpClient    *http.Client
	prefix        string
	stripPrefix   bool
}

var proxiedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodHead,
	http.MethodOptions,
}

func (p *proxy) Bind(engine *gin.Engine) error {
	if len(p.endpoints) == 0 {
		return errors.New("proxy not loaded: no endpoints configured")
	}

	route := p.prefix + "/*proxyPath"
	for _, method := range proxiedMethods {
		engine.Handle(method, route, p.forward)
	}
	return nil
}

func (p *proxy) Close() error {
	p.transport.CloseIdleConnections()
	return nil
}

func (p *proxy) nextEndpoint() url.URL {
	p.mu.Lock()
	defer func() {
		p.endpointIndex = (p.endpointIndex + 1) % len(p.endpoints)
		p.mu.Unlock()
	}()
	return p.endpoints[p.endpointIndex]
}

// hopHeaders are dropped in both directions along with credentials.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func (p *proxy) targetPath(endpoint url.URL, requestPath string) string {
	forwarded := requestPath
	if p.stripPrefix {
		forwarded = strings.TrimPrefix(requestPath, p.prefix)
		if !strings.HasPrefix(forwarded, "/") {
			forwarded = "/" + forwarded
		}
	}
	return strings.TrimSuffix(endpoint.Path, "/") + forwarded
}

func (p *proxy) forward(c *gin.Context) {
	logger := middleware.Logger(c)
	endpoint := p.nextEndpoint()
	targetUrl := url.URL{
		Scheme:   endpoint.Scheme,
		Host:     endpoint.Host,
		Path:     p.targetPath(endpoint, c.Request.URL.Path),
		RawQuery: c.Request.URL.RawQuery,
	}

	request, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetUrl.String(), c.Request.Body)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	for k, v := range c.Request.Header {
		if hopHeaders[http.CanonicalHeaderKey(k)] || strings.EqualFold(k, "Host") ||
			strings.HasPrefix(strings.ToLower(k), "x-forwarded-") || strings.EqualFold(k, "Cookie") {
			continue
		}
		for _, vv := range v {
			request.Header.Add(k, vv)
		}
	}

	request.Header.Set("X-Forwarded-For", c.ClientIP())
	request.Header.Set("X-Forwarded-Host", c.Request.Host)
	if c.Request.TLS != nil {
		request.Header.Set("X-Forwarded-Proto", "https")
	} else {
		request.Header.Set("X-Forwarded-Proto", "http")
	}

	response, err := p.httpClient.Do(request)
	if err != nil {
		logger.Warn().Err(err).Str("endpoint", endpoint.Host).Msg("Proxy request failed")
		_ = c.AbortWithError(http.StatusBadGateway, err)
		return
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing response body")
		}
	}()

	for k, v := range response.Header {
		if hopHeaders[http.CanonicalHeaderKey(k)] || strings.EqualFold(k, "Set-Cookie") {
			continue
		}
		for _, vv := range v {
			c.Writer.Header().Add(k, vv)
		}
	}
	c.Status(response.StatusCode)

	if _, err = io.Copy(c.Writer, response.Body); err != nil {
		logger.Error().Err(err).Msg("Error copying response body")
	}
}
