package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"copytrade-hertz/biz/engine"
	"copytrade-hertz/biz/model"
	"copytrade-hertz/biz/service"
	"copytrade-hertz/conf"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/hertz-contrib/websocket"
	"github.com/segmentio/kafka-go"
)

const shardNum = 32

var upgrader = websocket.HertzUpgrader{
	CheckOrigin: func(ctx *app.RequestContext) bool {
		return true // 允许所有跨域 WebSocket 连接
	},
}

// UserShard 按用户分片的会话表
// 一个用户可以开多个看板会话，推送对全部会话生效
type UserShard struct {
	Mu     sync.RWMutex
	Subs   map[string]map[*websocket.Conn]struct{}
	MsgBuf map[string]chan []byte // 每个用户的推送缓冲区
}

var userShards [shardNum]*UserShard

func init() {
	for i := 0; i < shardNum; i++ {
		userShards[i] = &UserShard{
			Subs:   make(map[string]map[*websocket.Conn]struct{}),
			MsgBuf: make(map[string]chan []byte),
		}
	}
}

// 连接当前绑定的用户，投递前的最后一道校验依据
var (
	bindMu   sync.RWMutex
	connUser = make(map[*websocket.Conn]string)
)

func boundUser(c *websocket.Conn) string {
	bindMu.RLock()
	defer bindMu.RUnlock()
	return connUser[c]
}

func unbindConn(c *websocket.Conn) {
	bindMu.Lock()
	delete(connUser, c)
	bindMu.Unlock()
}

// deliverable 投递某用户的消息前校验会话绑定，改绑过的旧登记直接丢
func deliverable(c *websocket.Conn, userID string) bool {
	return boundUser(c) == userID
}

// rebindSession 会话绑定/改绑用户
// 改绑必须先摘掉旧用户的登记，否则旧用户的推送会流向新身份
func rebindSession(conn *websocket.Conn, oldUser, newUser string) {
	if oldUser != "" && oldUser != newUser {
		removeConnFromUser(oldUser, conn)
	}
	shard := GetUserShard(newUser)
	shard.Mu.Lock()
	if shard.Subs[newUser] == nil {
		shard.Subs[newUser] = make(map[*websocket.Conn]struct{})
	}
	shard.Subs[newUser][conn] = struct{}{}
	ensureUserDispatcher(shard, newUser)
	shard.Mu.Unlock()

	bindMu.Lock()
	connUser[conn] = newUser
	bindMu.Unlock()
}

func removeConnFromUser(userID string, conn *websocket.Conn) {
	shard := GetUserShard(userID)
	shard.Mu.Lock()
	if conns, ok := shard.Subs[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(shard.Subs, userID)
		}
	}
	shard.Mu.Unlock()
}

// 启动用户消息分发 goroutine
func ensureUserDispatcher(shard *UserShard, userID string) {
	if _, ok := shard.MsgBuf[userID]; ok {
		return
	}
	msgBuf := make(chan []byte, 4096)
	shard.MsgBuf[userID] = msgBuf
	go func() {
		for msg := range msgBuf {
			shard.Mu.RLock()
			conns := shard.Subs[userID]
			for conn := range conns {
				conn := conn
				msg := msg
				err := engine.BroadcastPool.Submit(func() {
					if !deliverable(conn, userID) {
						return
					}
					success := false
					for i := 0; i < 3; i++ {
						if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
							log.Printf("broadcast error: %v, retry %d", err, i+1)
						} else {
							success = true
							break
						}
					}
					if !success {
						log.Printf("conn write failed after retries, will remove from user: %v", conn.RemoteAddr())
						removeConnFromUser(userID, conn)
						cleanConnFromAllUsers(conn)
						unbindConn(conn)
						_ = conn.Close()
					}
				})
				if err != nil {
					log.Printf("BroadcastPool.Submit error: %v, conn: %v", err, conn.RemoteAddr())
				}
			}
			shard.Mu.RUnlock()
		}
		shard.Mu.Lock()
		delete(shard.MsgBuf, userID)
		shard.Mu.Unlock()
	}()
}

func GetUserShard(userID string) *UserShard {
	h := fnv32(userID)
	return userShards[h%shardNum]
}

func fnv32(key string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h
}

// 清理连接的所有会话登记
func cleanConnFromAllUsers(c *websocket.Conn) {
	for i := 0; i < shardNum; i++ {
		shard := userShards[i]
		shard.Mu.Lock()
		for user, conns := range shard.Subs {
			if conns != nil {
				if _, ok := conns[c]; ok {
					delete(conns, c)
					if len(conns) == 0 {
						delete(shard.Subs, user)
					}
				}
			}
		}
		shard.Mu.Unlock()
	}
}

var _ engine.Broadcaster = Broadcast

// Broadcast 推送消息到某用户全部会话
// 只会进该用户自己的缓冲区，不同用户的事件物理隔离
func Broadcast(userID string, msg []byte) {
	shard := GetUserShard(userID)
	shard.Mu.Lock()
	ensureUserDispatcher(shard, userID)
	buf, ok := shard.MsgBuf[userID]
	shard.Mu.Unlock()
	if ok && buf != nil {
		select {
		case buf <- msg:
			// 写入成功
		default:
			log.Printf("user %s push buffer full, drop message", userID)
			go saveDroppedMessage(userID, msg)
		}
	}
}

// 丢弃的推送异步写入 Kafka，供对账
func saveDroppedMessage(userID string, msg []byte) {
	go func() {
		w := getDroppedKafkaWriter()
		if w == nil {
			log.Printf("failed to get dropped kafka writer")
			return
		}
		_ = w.WriteMessages(context.Background(), kafka.Message{Key: []byte(userID), Value: msg})
	}()
}

var droppedKafkaWriter *kafka.Writer
var droppedWriterOnce sync.Once

func getDroppedKafkaWriter() *kafka.Writer {
	droppedWriterOnce.Do(func() {
		brokers := conf.GetConf().Kafka.Brokers
		droppedKafkaWriter = &kafka.Writer{
			Addr:  kafka.TCP(brokers...),
			Topic: conf.GetConf().Kafka.Topics["dropped_push"],
			Async: true,
		}
	})
	return droppedKafkaWriter
}

var (
	registry *service.ConnectionRegistry
	window   *service.TradeWindow
	tracker  *service.DeliveryTracker
)

// InjectServices 注入看板会话依赖的服务
func InjectServices(r *service.ConnectionRegistry, w *service.TradeWindow, t *service.DeliveryTracker) {
	registry = r
	window = w
	tracker = t
}

// NewWebSocketServer 看板 WebSocket 服务端
// 先 AUTHENTICATE 绑定用户，之后的拉取和推送都只在该用户范围内
func NewWebSocketServer(addr string) *server.Hertz {
	h := server.Default(server.WithHostPorts(addr))
	h.NoHijackConnPool = true

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
			log.Printf("[WS] connection upgraded: %v", conn.RemoteAddr())
			authedUser := ""
			defer func() {
				cleanConnFromAllUsers(conn)
				unbindConn(conn)
				if err := conn.Close(); err != nil {
					log.Printf("close error: %v", err)
				}
				log.Printf("[WS] connection closed: %v", conn.RemoteAddr())
			}()

			for {
				mt, msg, err := conn.ReadMessage()
				if err != nil {
					log.Printf("read error: %v", err)
					break
				}

				var req model.ClientMessage
				if err := json.Unmarshal(msg, &req); err != nil {
					writeError(conn, mt, "invalid message")
					continue
				}

				if req.Type == model.MsgAuthenticate {
					if req.UserID == "" {
						writeError(conn, mt, "user_id required")
						continue
					}
					rebindSession(conn, authedUser, req.UserID)
					authedUser = req.UserID
					ack := []byte(`{"type":"AUTHENTICATED","user_id":"` + authedUser + `"}`)
					if err := conn.WriteMessage(mt, ack); err != nil {
						log.Printf("ack error: %v", err)
					}
					continue
				}

				// 其余请求必须先鉴权，且只能查自己的数据
				if authedUser == "" {
					writeError(conn, mt, "not authenticated")
					continue
				}

				switch req.Type {
				case model.MsgGetConnectedAccounts:
					accounts := registry.ListByUser(authedUser)
					reply, _ := json.Marshal(model.NewConnectedAccountsEvent(authedUser, accounts))
					if err := conn.WriteMessage(mt, reply); err != nil {
						log.Printf("reply error: %v", err)
					}
				case model.MsgGetRecentTrades:
					trades := window.Recent(authedUser, req.Limit)
					if tracker != nil {
						// 落定写入还在进行，序列化前换成锁内快照
						for i, tr := range trades {
							trades[i] = tracker.TradeView(tr)
						}
					}
					reply, _ := json.Marshal(model.NewRecentTradesEvent(authedUser, trades))
					if err := conn.WriteMessage(mt, reply); err != nil {
						log.Printf("reply error: %v", err)
					}
				default:
					writeError(conn, mt, "unknown message type")
				}
			}
		})
		if err != nil {
			log.Printf("upgrade error: %v", err)
		}
	})

	return h
}

func writeError(conn *websocket.Conn, mt int, reason string) {
	_ = conn.WriteMessage(mt, []byte(`{"type":"ERROR","reason":"`+reason+`"}`))
}
