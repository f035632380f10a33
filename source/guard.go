package source

import (
	"net/url"
	"path"
	"strings"

	"github.com/chaos-io/fitroom/codec"
)

// Origin 图片来源分类
type Origin int

const (
	OriginUnknown Origin = iota
	// OriginLocal 本站静态资源、本站上传或直接上传的字节
	OriginLocal
	// OriginInline data uri
	OriginInline
	// OriginExternal 外站图片，边缘采样没有意义
	OriginExternal
	// OriginMatted 已经抠过图（例如来自抠图服务）
	OriginMatted
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginInline:
		return "inline"
	case OriginExternal:
		return "external"
	case OriginMatted:
		return "matted"
	default:
		return "unknown"
	}
}

// Eligible 只有本地和内联图片才做抠图
func (o Origin) Eligible() bool {
	return o == OriginLocal || o == OriginInline
}

// Ref 调用方提供的图片引用
type Ref struct {
	URL string
	// Matted 调用方明确标记已去背景
	Matted bool
}

type Guard struct {
	StaticPrefixes []string
	LocalHosts     []string
	MattedMarkers  []string
}

func DefaultGuard() *Guard {
	return &Guard{
		StaticPrefixes: []string{"/static/", "/uploads/", "/images/", "/assets/"},
		LocalHosts:     []string{"localhost", "127.0.0.1"},
		MattedMarkers:  []string{"nobg", "no-bg", "no_bg", "cutout", "transparent", "removebg", "remove-bg"},
	}
}

// Classify 判断引用来源，决定是否抠图
func (g *Guard) Classify(ref Ref) Origin {
	if ref.Matted {
		return OriginMatted
	}
	origin := g.Locate(ref.URL)
	if origin == OriginLocal || origin == OriginExternal {
		if u, err := url.Parse(strings.TrimSpace(ref.URL)); err == nil && g.hasMattedMarker(u.Path) {
			return OriginMatted
		}
	}
	return origin
}

// Locate 只看图片在哪里，不考虑是否已抠图
func (g *Guard) Locate(raw string) Origin {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return OriginLocal
	}
	if codec.IsDataURI(raw) {
		return OriginInline
	}

	u, err := url.Parse(raw)
	if err != nil {
		return OriginUnknown
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if g.isLocalHost(u.Hostname()) {
			return OriginLocal
		}
		return OriginExternal
	case "":
		if u.Host != "" {
			// 协议相对地址 //cdn.example.com/a.png
			if g.isLocalHost(u.Hostname()) {
				return OriginLocal
			}
			return OriginExternal
		}
		if g.isStaticPath(u.Path) {
			return OriginLocal
		}
		return OriginUnknown
	default:
		return OriginExternal
	}
}

func (g *Guard) isLocalHost(host string) bool {
	for _, h := range g.LocalHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func (g *Guard) isStaticPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	clean := path.Clean(p)
	for _, prefix := range g.StaticPrefixes {
		if strings.HasPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

func (g *Guard) hasMattedMarker(p string) bool {
	name := strings.ToLower(p)
	for _, m := range g.MattedMarkers {
		if m != "" && strings.Contains(name, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
