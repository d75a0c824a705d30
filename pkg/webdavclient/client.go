// Package webdavclient moves files between the local store and a WebDAV
// server using gowebdav.
package webdavclient

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/materials-commons/mcsync/pkg/transfer"
	"github.com/studio-b12/gowebdav"
)

// Client adapts a gowebdav client to transfer.RemoteClient. gowebdav calls
// take no context, so cancellation is applied to the streams.
type Client struct {
	dav *gowebdav.Client
}

func New(dav *gowebdav.Client) *Client {
	return &Client{dav: dav}
}

func (c *Client) Stat(ctx context.Context, remotePath string) (*transfer.RemoteFileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fi, err := c.dav.Stat(remotePath)
	if err != nil {
		return nil, toStatusError(err)
	}

	info := &transfer.RemoteFileInfo{
		Path:    remotePath,
		Size:    fi.Size(),
		IsDir:   fi.IsDir(),
		ModTime: fi.ModTime(),
	}

	if tagged, ok := fi.(interface{ ETag() string }); ok {
		info.ETag = tagged.ETag()
	}

	return info, nil
}

func (c *Client) Download(ctx context.Context, remotePath string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	stream, err := c.dav.ReadStream(remotePath)
	if err != nil {
		return 0, toStatusError(err)
	}

	// Closing the stream unblocks a read stuck on the network.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-done:
		}
	}()
	defer stream.Close()

	n, err := io.Copy(w, &contextReader{ctx: ctx, r: stream})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return n, ctxErr
	}

	return n, err
}

func (c *Client) Upload(ctx context.Context, remotePath string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.dav.WriteStream(remotePath, &contextReader{ctx: ctx, r: r}, 0644); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return toStatusError(err)
	}

	return nil
}

func (c *Client) MkdirAll(ctx context.Context, remoteDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.dav.MkdirAll(remoteDir, 0755); err != nil {
		return toStatusError(err)
	}

	return nil
}

func (c *Client) Remove(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.dav.Remove(remotePath); err != nil {
		return toStatusError(err)
	}

	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}

// toStatusError turns gowebdav's status failures into *transfer.StatusError
// so they classify by HTTP status. Other errors pass through unchanged.
func toStatusError(err error) error {
	if gowebdav.IsErrNotFound(err) {
		return &transfer.StatusError{Code: http.StatusNotFound, Err: err}
	}

	for code := 400; code < 600; code++ {
		if gowebdav.IsErrCode(err, code) {
			return &transfer.StatusError{Code: code, Err: err}
		}
	}

	return err
}

var _ transfer.RemoteClient = (*Client)(nil)

type Account struct {
	Name     string
	URL      string
	Username string
	Password string
}

type ProviderOptionFN func(*Provider)

// Provider hands out one client per configured account.
type Provider struct {
	accounts  map[string]Account
	clients   map[string]*Client
	timeout   time.Duration
	transport http.RoundTripper
	mu        sync.Mutex
}

func NewProvider(accounts []Account, optFNs ...ProviderOptionFN) *Provider {
	p := &Provider{
		accounts: make(map[string]Account, len(accounts)),
		clients:  make(map[string]*Client),
		timeout:  5 * time.Minute,
	}

	for _, account := range accounts {
		p.accounts[account.Name] = account
	}

	for _, optFN := range optFNs {
		optFN(p)
	}

	return p
}

func WithTimeout(timeout time.Duration) ProviderOptionFN {
	return func(p *Provider) {
		p.timeout = timeout
	}
}

func WithTransport(transport http.RoundTripper) ProviderOptionFN {
	return func(p *Provider) {
		p.transport = transport
	}
}

func (p *Provider) ClientFor(accountName string) (transfer.RemoteClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[accountName]; ok {
		return client, nil
	}

	account, ok := p.accounts[accountName]
	if !ok || account.URL == "" {
		return nil, transfer.ErrNoCredentials
	}

	dav := gowebdav.NewClient(account.URL, account.Username, account.Password)
	dav.SetTimeout(p.timeout)
	if p.transport != nil {
		dav.SetTransport(p.transport)
	}

	client := New(dav)
	p.clients[accountName] = client

	return client, nil
}

// Accounts lists the names of the configured accounts.
func (p *Provider) Accounts() []string {
	names := make([]string, 0, len(p.accounts))
	for name := range p.accounts {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// CheckConnection verifies the account's credentials against the server.
func (p *Provider) CheckConnection(accountName string) error {
	client, err := p.ClientFor(accountName)
	if err != nil {
		return err
	}

	if err := client.(*Client).dav.Connect(); err != nil {
		return toStatusError(err)
	}

	return nil
}

var _ transfer.ClientProvider = (*Provider)(nil)
