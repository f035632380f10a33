package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaos-io/fitroom/codec"
	nhttp "github.com/chaos-io/fitroom/util/http"
)

const maxRedirects = 5

var (
	ErrNotLocal = errors.New("image reference is not a local asset")
	ErrEmptyRef = errors.New("empty image reference")
)

// Loader 读取本地图片：静态目录、本站 host 或 data uri
type Loader struct {
	Guard *Guard
	// StaticRoot 静态资源根目录，URL 路径直接映射到该目录下
	StaticRoot string
	Client     nhttp.IClient
	Timeout    time.Duration
	MaxBytes   int64
}

func NewLoader(guard *Guard, staticRoot string) *Loader {
	l := &Loader{
		Guard:      guard,
		StaticRoot: staticRoot,
		Timeout:    10 * time.Second,
		MaxBytes:   20 << 20,
	}
	l.Client = nhttp.NewHTTPClient(nhttp.WithCheckRedirect(l.checkRedirect))
	return l
}

// checkRedirect 跳转目标同样要是本站地址，否则中止
func (l *Loader) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", ErrNotLocal, len(via))
	}
	if origin := l.Guard.Locate(req.URL.String()); origin != OriginLocal {
		return fmt.Errorf("%w: redirect to %s (%s)", ErrNotLocal, req.URL.Redacted(), origin)
	}
	return nil
}

// Load 读取引用对应的原始字节；外站引用返回 ErrNotLocal，不做任何网络请求
// 已抠图的本地图片也可以读取，是否抠图由 Guard.Classify 决定
func (l *Loader) Load(ctx context.Context, ref Ref) ([]byte, error) {
	origin := l.Guard.Locate(ref.URL)
	if !origin.Eligible() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotLocal, ref.URL, origin)
	}

	raw := strings.TrimSpace(ref.URL)
	if raw == "" {
		return nil, ErrEmptyRef
	}
	if origin == OriginInline {
		_, data, err := codec.ParseDataURI(raw)
		return data, err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ref: %w", err)
	}
	if u.Host != "" {
		return l.fetch(ctx, u)
	}
	return l.readStatic(u.Path)
}

func (l *Loader) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	var data []byte
	err := l.Client.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: u.String(),
		Method:     http.MethodGet,
		Response:   &data,
		Timeout:    l.Timeout,
		MaxBytes:   l.MaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	return data, nil
}

func (l *Loader) readStatic(p string) ([]byte, error) {
	if l.StaticRoot == "" {
		return nil, fmt.Errorf("%w: static root not configured", ErrNotLocal)
	}
	clean := path.Clean("/" + p)
	full := filepath.Join(l.StaticRoot, filepath.FromSlash(clean))

	root, err := filepath.Abs(l.StaticRoot)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return nil, err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s escapes static root", ErrNotLocal, p)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if l.MaxBytes > 0 && info.Size() > l.MaxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", nhttp.ErrResponseTooLarge, p, info.Size())
	}
	return os.ReadFile(abs)
}
