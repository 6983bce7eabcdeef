package gateway

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kalpovskii/tasktracker/internal/app/middleware"
)

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy forwards requests unchanged to the task service.
type Proxy struct {
	upstream string
	client   *http.Client
	logger   *slog.Logger
}

func NewProxy(upstream string, client *http.Client, logger *slog.Logger) *Proxy {
	return &Proxy{upstream: upstream, client: client, logger: logger}
}

func (p *Proxy) Register(r gin.IRouter) {
	r.Any("/api/*path", p.forward)
}

func (p *Proxy) forward(c *gin.Context) {
	target := p.upstream + c.Request.URL.RequestURI()

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	req.Header = c.Request.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Header.Set(middleware.RequestIDHeader, middleware.RequestIDFrom(c))
	req.ContentLength = c.Request.ContentLength

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.ErrorContext(c.Request.Context(), "upstream request failed",
			slog.String("rid", middleware.RequestIDFrom(c)),
			slog.String("target", target),
			slog.Any("error", err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		return
	}
	defer resp.Body.Close()

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	for k, values := range resp.Header {
		if k == middleware.RequestIDHeader {
			continue
		}
		for _, v := range values {
			c.Writer.Header().Add(k, v)
		}
	}

	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		p.logger.WarnContext(c.Request.Context(), "copy upstream body", slog.Any("error", err))
	}
}
