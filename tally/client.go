package tally

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultVoucherTimeout = 60 * time.Second
	defaultMasterTimeout  = 300 * time.Second
	maxRetries            = 4 // 5 attempts total
)

// Client talks to a Tally gateway (the XML-over-HTTP port, usually 9000).
// Transport and protocol failures are retried with exponential backoff;
// logical rejections from Tally itself are not.
type Client struct {
	url            string
	company        string
	httpc          *http.Client
	voucherTimeout time.Duration
	masterTimeout  time.Duration
	log            *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying transport, mainly for tests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// WithTimeouts overrides the per-request deadlines for voucher and master
// exports. Zero values keep the defaults.
func WithTimeouts(voucher, master time.Duration) ClientOption {
	return func(c *Client) {
		if voucher > 0 {
			c.voucherTimeout = voucher
		}
		if master > 0 {
			c.masterTimeout = master
		}
	}
}

// NewClient builds a client for the gateway at url, scoped to company.
func NewClient(url, company string, log *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		url:            strings.TrimRight(url, "/"),
		company:        company,
		httpc:          &http.Client{},
		voucherTimeout: defaultVoucherTimeout,
		masterTimeout:  defaultMasterTimeout,
		log:            log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchVouchers exports the Voucher Register for [from, to]. The returned
// document is sanitized and status-checked but otherwise raw XML; callers
// hand it to ParseVouchers.
func (c *Client) FetchVouchers(ctx context.Context, from, to time.Time) (string, error) {
	env := VoucherEnvelope(c.company, from, to)
	c.log.Debug("fetching vouchers",
		zap.String("from", from.Format("2006-01-02")),
		zap.String("to", to.Format("2006-01-02")))
	return c.post(ctx, ReportVoucherRegister, env, c.voucherTimeout)
}

// FetchMasters exports the master list selected by kind.
func (c *Client) FetchMasters(ctx context.Context, kind MasterKind) (string, error) {
	env := MasterEnvelope(c.company, kind)
	return c.post(ctx, kind.report(), env, c.masterTimeout)
}

// TestConnection issues a minimal accounts export and reports whether the
// gateway answered with a well-formed response.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.post(ctx, ReportAccounts, MasterEnvelope(c.company, MastersAccounts), c.masterTimeout)
	return err
}

func (c *Client) post(ctx context.Context, report, body string, timeout time.Duration) (string, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
		Stop:                backoff.Stop,
	}, maxRetries), ctx)

	var out string
	attempt := 0
	op := func() error {
		attempt++
		doc, err := c.roundTrip(ctx, body, timeout)
		if err != nil {
			c.log.Warn("tally request failed",
				zap.String("report", report),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		out = doc
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("export %q: %w", report, err)
	}
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, body string, timeout time.Duration) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Accept", "text/xml")
	req.Header.Set("User-Agent", "tally-postgres-ingester")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrSourceUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d", ErrSourceProtocol, resp.StatusCode)
	}

	doc := SanitizeXML(string(raw))
	if err := validateResponse(doc); err != nil {
		// Tally's answer will not change on retry.
		return "", backoff.Permanent(err)
	}
	return doc, nil
}

// validateResponse rejects malformed documents and explicit Tally failure
// statuses. A response without a STATUS element is a successful export.
func validateResponse(doc string) error {
	tree := etree.NewDocument()
	if err := tree.ReadFromString(doc); err != nil {
		return &ParseError{What: "response envelope", Err: err}
	}
	status := tree.FindElement("//STATUS")
	if status == nil {
		return nil
	}
	if s := strings.TrimSpace(status.Text()); s != "1" {
		detail := ""
		if e := tree.FindElement("//LINEERROR"); e != nil {
			detail = strings.TrimSpace(e.Text())
		}
		return &LogicalError{Status: s, Detail: detail}
	}
	return nil
}
