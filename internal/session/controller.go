package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nao1215/relay/internal/fanout"
	"github.com/nao1215/relay/internal/presence"
	"github.com/nao1215/relay/internal/profile"
	"github.com/nao1215/relay/pkg/event"
	"github.com/nao1215/relay/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// ErrUnauthorized は認証に失敗したことを表す。理由は区別しない。
var ErrUnauthorized = errors.New("unauthorized")

// Verifier は資格情報を検証してユーザーIDを返す。
type Verifier func(token string) (userID string, err error)

// UserLookup は削除されていないユーザーをIDで引く。
type UserLookup interface {
	UserByID(ctx context.Context, id string) (profile.User, error)
}

// Config はControllerの設定。
type Config struct {
	// Verify は資格情報の検証。
	Verify Verifier
	// Users は認証したユーザーの存在確認に使う。
	Users UserLookup
	// Directory は在席ディレクトリ。
	Directory *presence.Directory[fanout.Conn]
	// Handlers は受信イベントの処理。
	Handlers Handlers
	// RatePerSec は1セッションあたりの受信イベントの平均流量。0以下なら制限しない。
	RatePerSec float64
	// Burst は受信イベントの瞬間的な上限。
	Burst int
	// Registerer はメトリクスの登録先。
	Registerer prometheus.Registerer
}

// Controller はセッションの生成・認証・イベント処理・終了を行う。
type Controller struct {
	verify    Verifier
	users     UserLookup
	directory *presence.Directory[fanout.Conn]
	handlers  Handlers
	limit     rate.Limit
	burst     int

	// active は現在Activeのセッション数。
	active prometheus.Gauge
	// events は受信イベントの処理結果ごとの件数。
	events *prometheus.CounterVec
	// authFailures は認証失敗の件数。
	authFailures prometheus.Counter
}

// NewController は新しいControllerを生成する。
func NewController(cfg Config) *Controller {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Controller{
		verify:    cfg.Verify,
		users:     cfg.Users,
		directory: cfg.Directory,
		handlers:  cfg.Handlers,
		limit:     limit,
		burst:     burst,
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Sessions currently in the active state.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_session_events_total",
			Help: "Inbound events handled, by event and result.",
		}, []string{"event", "result"}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_session_auth_failures_total",
			Help: "Connections rejected during authentication.",
		}),
	}
}

// Open は開いた接続のセッションを作り、Authenticatingへ進める。
func (c *Controller) Open(conn fanout.Conn) *Session {
	s := newSession(conn, rate.NewLimiter(c.limit, c.burst))
	if err := s.transition(Connecting, Authenticating); err != nil {
		// 作成直後なので起こらない
		log.Printf("セッションの開始に失敗 (conn=%s): %v", conn.ID(), err)
	}
	return s
}

// Authenticate は資格情報を検証し、成功すればセッションをActiveにして在席登録する。
// 失敗した場合はセッションをDisconnectedにしてErrUnauthorizedを返す。
// 同じユーザーの以前の接続は在席ディレクトリから置き換えられる。
func (c *Controller) Authenticate(ctx context.Context, s *Session, token string) error {
	user, err := c.identify(ctx, token)
	if err != nil {
		s.disconnect()
		c.authFailures.Inc()
		log.Printf("認証に失敗しました (conn=%s): %v", s.ConnID(), err)
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if err := s.activate(user); err != nil {
		return err
	}
	if previous, replaced := c.directory.Register(user.ID, s.conn); replaced && previous.ID() != s.ConnID() {
		log.Printf("以前の接続を置き換えました (user=%s, old=%s, new=%s)", user.ID, previous.ID(), s.ConnID())
	}
	c.active.Inc()
	return nil
}

func (c *Controller) identify(ctx context.Context, token string) (profile.User, error) {
	userID, err := c.verify(token)
	if err != nil {
		return profile.User{}, err
	}
	user, err := c.users.UserByID(ctx, userID)
	if err != nil {
		return profile.User{}, fmt.Errorf("ユーザー %s を確認できません: %w", userID, err)
	}
	return user, nil
}

// Close はセッションをDisconnectedにする。Activeだった場合は在席登録を解除する。
// 別の接続に置き換えられた後であれば、新しい接続の登録は残る。
func (c *Controller) Close(s *Session) {
	if prev := s.disconnect(); prev != Active {
		return
	}
	c.active.Dec()
	if !c.directory.Unregister(s.UserID(), s.conn) {
		log.Printf("置き換え済みの接続が切断されました (user=%s, conn=%s)", s.UserID(), s.ConnID())
	}
}

// Dispatch は受信したメッセージを1件処理する。
// 同じセッションのDispatchは直列に実行される。ハンドラの失敗やパニックは
// errorイベントとしてクライアントへ伝え、セッションは継続する。
func (c *Controller) Dispatch(ctx context.Context, s *Session, raw []byte) {
	s.serial.Lock()
	defer s.serial.Unlock()

	if s.State() != Active {
		return
	}
	// 解析できないメッセージや未対応のイベントも1件として数える
	if !s.limiter.Allow() {
		c.events.WithLabelValues("", "limited").Inc()
		c.reply(s, msgRateLimited)
		return
	}

	e, err := event.Parse(raw)
	if err != nil {
		c.events.WithLabelValues("", "malformed").Inc()
		c.reply(s, msgBadMessage)
		return
	}

	r, ok := routes[e.Event]
	if !ok {
		c.events.WithLabelValues("", "unknown").Inc()
		c.reply(s, fmt.Sprintf("%s: %s", msgUnknownEvent, e.Event))
		return
	}

	var handlerErr error
	label := fmt.Sprintf("event=%s user=%s", e.Event, s.UserID())
	if middleware.Guard(label, func() { handlerErr = r(ctx, c.handlers, s, e) }, nil) {
		c.events.WithLabelValues(string(e.Event), "panic").Inc()
		c.reply(s, msgInternal)
		return
	}
	if handlerErr != nil {
		c.events.WithLabelValues(string(e.Event), "failed").Inc()
		log.Printf("イベント処理に失敗 (user=%s, event=%s): %v", s.UserID(), e.Event, handlerErr)
		c.reply(s, clientMessage(handlerErr))
		return
	}
	c.events.WithLabelValues(string(e.Event), "ok").Inc()
}

// reply はセッションへerrorイベントを送る。送信できなくても処理は続ける。
func (c *Controller) reply(s *Session, message string) {
	if err := s.Send(event.Error, message); err != nil {
		log.Printf("errorイベントを送信できませんでした (conn=%s): %v", s.ConnID(), err)
	}
}
