package telegram

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// NewPoller returns the webhook or long poller selected by cfg.Telegram.RunMode.
func NewPoller(cfg *coreconfig.Config) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(cfg.Telegram.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: longPollTimeout(cfg)}
}

func longPollTimeout(cfg *coreconfig.Config) time.Duration {
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultLongPollTimeout
}

// ClientOptions tunes NewHTTPClient. Zero values take the defaults.
type ClientOptions struct {
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	Upstream http.RoundTripper
}

// NewHTTPClient returns the client used for Bot API calls. Requests whose
// body can be replayed are retried on transient network failures with a
// linear backoff.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.Upstream == nil {
		opts.Upstream = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &retryTransport{next: opts.Upstream, retries: opts.Retries, backoff: opts.Backoff},
	}
}

type retryTransport struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	resp, err := t.next.RoundTrip(req)
	for attempt := 1; err != nil && replayable && attempt <= t.retries && netutil.ShouldRetry(err); attempt++ {
		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			retry.Body = body
		}
		resp, err = t.next.RoundTrip(retry)
	}
	return resp, err
}
