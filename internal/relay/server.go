// Package relay はリアルタイムのメッセージと通知を中継するHTTPサーバーを提供する。
//
// /ws でWebSocket接続を受け付け、認証後の受信イベントをセッション制御へ渡す。
// 同じ読み取り処理をREST API（/api/v1）からも利用できる。
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nao1215/relay/internal/fanout"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/presence"
	"github.com/nao1215/relay/internal/profile"
	"github.com/nao1215/relay/internal/session"
	"github.com/nao1215/relay/internal/store"
	"github.com/nao1215/relay/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// devTokenTTL は開発用トークンの有効期間。
const devTokenTTL = 24 * time.Hour

// Server はリレーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバーの設定。
	cfg Config
	// store は永続ストア。
	store *store.Store
	// directory はオンラインのユーザーと接続の対応。
	directory *presence.Directory[fanout.Conn]
	// hub は受信イベントの処理。
	hub *hub
	// sessions は接続のライフサイクル制御。
	sessions *session.Controller
	// upgrader はHTTP接続をWebSocketに切り替える。
	upgrader websocket.Upgrader
	// registry はメトリクスの登録先。
	registry *prometheus.Registry
}

// NewServer は新しいリレーサーバーを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	st, err := store.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("ストアの初期化に失敗: %w", err)
	}
	return newServer(cfg, st), nil
}

func newServer(cfg Config, st *store.Store) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	directory := presence.NewDirectory[fanout.Conn]()
	h := newHub(st, fanout.NewRouter(directory, registry), directory)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:    router,
		cfg:       cfg,
		store:     st,
		directory: directory,
		hub:       h,
		sessions: session.NewController(session.Config{
			Verify: func(token string) (string, error) {
				return middleware.VerifyToken(cfg.JWTSecret, token)
			},
			Users:      st,
			Directory:  directory,
			Handlers:   h,
			RatePerSec: cfg.EventRatePerSec,
			Burst:      cfg.EventBurst,
			Registerer: registry,
		}),
		registry: registry,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// Close はストアを閉じる。
func (s *Server) Close() error {
	return s.store.Close()
}

// Handler はサーバーのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// リアルタイム接続
	s.router.GET("/ws", s.handleWebSocket())

	if s.cfg.DevTokenEnabled {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		api.GET("/conversations", s.handleListConversations())
		api.GET("/conversations/:path", s.handleGetConversation())
		api.GET("/notifications", s.handleListNotifications())
		api.GET("/notifications/unseen-count", s.handleUnseenCount())
		api.POST("/notifications", s.handleCreateNotification())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "relay"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "relay", "online": s.directory.Count()})
	})

	// メトリクス
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// checkOrigin はWebSocketのOriginを許可リストで確認する。Originの無いリクエストは許可する。
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

// handshakeToken はハンドシェイクの資格情報を取り出す。
// Authorizationヘッダーを優先し、無ければtokenクエリパラメータを使う。
func handshakeToken(c *gin.Context) string {
	if token, err := middleware.BearerToken(c.GetHeader("Authorization")); err == nil {
		return token
	}
	return c.Query("token")
}

// handleWebSocket はWebSocket接続を受け付けるハンドラ。
// 接続ごとに読み取りと書き込みのゴルーチンを1つずつ持ち、受信イベントは読み取り側で直列に処理する。
func (s *Server) handleWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := handshakeToken(c)

		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocketへの切り替えに失敗: %v", err)
			return
		}
		conn := newWSConn(ws, s.cfg.SendBuffer)

		sess := s.sessions.Open(conn)
		// 接続を閉じても処理中のストア操作は取り消さない
		ctx := context.WithoutCancel(c.Request.Context())
		if err := s.sessions.Authenticate(ctx, sess, token); err != nil {
			conn.reject(session.ErrUnauthorized.Error())
			return
		}

		go conn.writeLoop()
		conn.readLoop(func(raw []byte) {
			s.sessions.Dispatch(ctx, sess, raw)
		})

		s.sessions.Close(sess)
		conn.Close()
	}
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 指定したパスのユーザーが無ければ作成する。本番環境では無効化すべき。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Path      string `json:"path" binding:"required"`
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		ctx := c.Request.Context()
		user, err := s.store.UserByPath(ctx, req.Path)
		if errors.Is(err, store.ErrNotFound) {
			user, err = s.store.CreateUser(ctx, profile.User{
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Path:      req.Path,
			})
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("開発ユーザー取得エラー: %v", err)
			return
		}

		token, err := middleware.GenerateJWT(s.cfg.JWTSecret, user.ID, devTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": user.ID,
		})
	}
}

// handleListConversations は認証済みユーザーの会話一覧を返すハンドラ。
func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := s.hub.conversations(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "会話一覧の取得に失敗しました"})
			log.Printf("会話一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, conversationListPayload{Conversations: summaries})
	}
}

// handleGetConversation は指定した相手との会話履歴を返すハンドラ。
func (s *Server) handleGetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := s.hub.conversation(c.Request.Context(), middleware.GetUserID(c), c.Param("path"))
		if err != nil {
			var f *session.Failure
			if errors.As(err, &f) {
				c.JSON(http.StatusNotFound, gin.H{"error": f.Message})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "会話の取得に失敗しました"})
			log.Printf("会話取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, payload)
	}
}

// handleListNotifications は認証済みユーザーの通知フィードを返すハンドラ。
func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		feed, err := s.hub.notifications(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, feed)
	}
}

// handleUnseenCount は認証済みユーザーの未読通知数を返すハンドラ。
func (s *Server) handleUnseenCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := s.store.UnseenNotificationCount(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知数の取得に失敗しました"})
			log.Printf("未読通知数取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// createNotificationRequest は通知作成リクエストのJSON構造。
type createNotificationRequest struct {
	// To は通知先ユーザーのパス。
	To string `json:"to" binding:"required"`
	// Type は通知の種類。
	Type notification.Type `json:"type" binding:"required"`
	// PostID はいいね通知の対象投稿。
	PostID string `json:"postId"`
	// Message は汎用通知の本文。
	Message string `json:"message"`
}

// handleCreateNotification は認証済みユーザーを発生元とする通知を作成し、
// 通知先がオンラインなら未読通知数を届けるハンドラ。
func (s *Server) handleCreateNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createNotificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if !req.Type.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("未定義の通知種別です: %s", req.Type)})
			return
		}
		if req.Type == notification.TypeLikePost && req.PostID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "いいね通知には投稿IDが必要です"})
			return
		}

		ctx := c.Request.Context()
		target, err := s.hub.userByPath(ctx, req.To)
		if err != nil {
			var f *session.Failure
			if errors.As(err, &f) {
				c.JSON(http.StatusNotFound, gin.H{"error": f.Message})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知先の取得に失敗しました"})
			log.Printf("通知先取得エラー: %v", err)
			return
		}

		id, err := s.store.CreateNotification(ctx, store.NewNotification{
			FromID:  middleware.GetUserID(c),
			ToID:    target.ID,
			Type:    req.Type,
			PostID:  req.PostID,
			Message: req.Message,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			log.Printf("通知作成エラー: %v", err)
			return
		}

		outcome, err := s.hub.pushUnseenCount(ctx, target.ID)
		if err != nil {
			// 通知自体は保存済みなので成功として扱う
			log.Printf("未読通知数の配送に失敗: %v", err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":       id,
			"delivery": outcome.String(),
		})
	}
}
