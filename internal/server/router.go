package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"k12-tutor/internal/api"
	"k12-tutor/internal/platform/logger"
)

const maxBodyBytes = 1 << 20

type RouterConfig struct {
	Endpoints    *api.Endpoints
	Log          *logger.Logger
	StaticDir    string
	AllowOrigins []string
	ServiceName  string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(CorrelationID())
	r.Use(RequestLogger(cfg.Log))
	r.Use(CORS(cfg.AllowOrigins))

	h := &chatHandler{endpoints: cfg.Endpoints}
	g := r.Group("/api")
	{
		g.POST("/chat", h.Chat)
		g.GET("/conversation/:sessionId", h.History)
		g.GET("/health", h.Health)
	}

	if cfg.StaticDir != "" {
		index := filepath.Join(cfg.StaticDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			r.StaticFile("/", index)
		}
		r.Static("/static", cfg.StaticDir)
	}
	return r
}

type chatHandler struct {
	endpoints *api.Endpoints
}

func (h *chatHandler) Chat(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: api.MsgMessageRequired})
		return
	}
	respond(c, h.endpoints.Chat(c.Request.Context(), body))
}

func (h *chatHandler) History(c *gin.Context) {
	respond(c, h.endpoints.History(c.Request.Context(), c.Param("sessionId")))
}

func (h *chatHandler) Health(c *gin.Context) {
	respond(c, h.endpoints.Health())
}

func respond(c *gin.Context, res api.Result) {
	c.JSON(res.Status, res.Body)
}
