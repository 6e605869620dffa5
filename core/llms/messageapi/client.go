package messageapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	messagePath = "/ai/v1/message"

	eventPrefix = "event:"
	chunkPrefix = "data:"
	endMessage  = "[DONE]"

	DefaultScope        = "api/access"
	DefaultSourcesLimit = 10
)

// Client streams answers from a message backend that keeps the conversation
// history itself, keyed by chat id.
type Client struct {
	endpoint string
	model    string

	enableMarkdown bool
	enableKallm    bool
	enableSources  bool
	sourcesLimit   int

	apiKey      string
	credentials *clientcredentials.Config

	baseClient *http.Client
	httpClient *http.Client
}

type ClientOption func(*Client)

// NewClient targets baseURL/ai/v1/message. Requests are authorized with
// client credentials when configured, otherwise with the static API key, and
// are sent unauthenticated when neither is set.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("messageapi: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("messageapi: invalid base url: %w", err)
	}

	client := &Client{
		endpoint:     strings.TrimSuffix(baseURL, "/") + messagePath,
		enableKallm:  true,
		sourcesLimit: DefaultSourcesLimit,
		baseClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}

	client.httpClient = client.baseClient
	if source := client.tokenSource(); source != nil {
		client.httpClient = &http.Client{Transport: &oauth2.Transport{
			Source: source,
			Base:   client.baseClient.Transport,
		}}
	}
	return client, nil
}

// WithModel sets the optional model override sent with every message.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithFeatures sets the enable_markdown, enable_kallm and enable_sources
// query flags.
func WithFeatures(markdown, kallm, sources bool) ClientOption {
	return func(c *Client) {
		c.enableMarkdown = markdown
		c.enableKallm = kallm
		c.enableSources = sources
	}
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithClientCredentials fetches and caches bearer tokens from tokenURL with
// the client credentials grant. An empty scope means api/access.
func WithClientCredentials(tokenURL, clientID, clientSecret, scope string) ClientOption {
	return func(c *Client) {
		if tokenURL == "" || clientID == "" || clientSecret == "" {
			return
		}
		if scope == "" {
			scope = DefaultScope
		}
		c.credentials = &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{scope},
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
	}
}

// WithHTTPClient replaces the client used for both messages and token
// requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.baseClient = httpClient
		}
	}
}

func (c *Client) tokenSource() oauth2.TokenSource {
	switch {
	case c.credentials != nil:
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.baseClient)
		return c.credentials.TokenSource(ctx)
	case c.apiKey != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.apiKey, TokenType: "Bearer"})
	}
	return nil
}

func (c *Client) messageURL() string {
	query := url.Values{}
	query.Set("enable_markdown", flag(c.enableMarkdown))
	query.Set("enable_kallm", flag(c.enableKallm))
	query.Set("enable_sources", flag(c.enableSources))
	return c.endpoint + "?" + query.Encode()
}

func flag(enabled bool) string {
	if enabled {
		return "1"
	}
	return "0"
}

// PromptWithStream prepares a streamed answer to prompt within the
// conversation named by llms.WithConversationID. Instructions and local
// history are not sent; the backend holds them. The request is sent when the
// chunks are iterated.
func (c *Client) PromptWithStream(_ context.Context, prompt string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &Stream{
		client: c,
		request: requestBody{
			ChatID:       options.ConversationID,
			Query:        prompt,
			SourcesLimit: c.sourcesLimit,
			Stream:       true,
			Model:        c.model,
		},
	}
}
