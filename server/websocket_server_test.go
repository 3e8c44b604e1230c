package server

import (
	"testing"

	"github.com/hertz-contrib/websocket"
)

// 会话改绑用户后，旧用户的登记必须同步摘除，否则旧用户的推送会流向新身份
func TestReauthenticateMovesSession(t *testing.T) {
	conn := &websocket.Conn{}
	rebindSession(conn, "", "iso-a")
	defer func() {
		cleanConnFromAllUsers(conn)
		unbindConn(conn)
	}()

	shardA := GetUserShard("iso-a")
	shardA.Mu.RLock()
	_, inA := shardA.Subs["iso-a"][conn]
	shardA.Mu.RUnlock()
	if !inA {
		t.Fatal("session must be registered under first user")
	}
	if boundUser(conn) != "iso-a" {
		t.Fatalf("binding: want iso-a, got %q", boundUser(conn))
	}

	rebindSession(conn, "iso-a", "iso-b")

	shardA.Mu.RLock()
	_, inA = shardA.Subs["iso-a"][conn]
	shardA.Mu.RUnlock()
	if inA {
		t.Error("re-authenticated session must leave previous user's registry")
	}
	shardB := GetUserShard("iso-b")
	shardB.Mu.RLock()
	_, inB := shardB.Subs["iso-b"][conn]
	shardB.Mu.RUnlock()
	if !inB {
		t.Error("session must be registered under new user")
	}
	if boundUser(conn) != "iso-b" {
		t.Errorf("binding: want iso-b, got %q", boundUser(conn))
	}
}

// 投递前按会话当前绑定做最后一道校验，旧身份的消息直接丢
func TestDeliveryGuardDropsForeignUser(t *testing.T) {
	conn := &websocket.Conn{}
	rebindSession(conn, "", "iso-c")
	rebindSession(conn, "iso-c", "iso-d")
	defer func() {
		cleanConnFromAllUsers(conn)
		unbindConn(conn)
	}()

	if deliverable(conn, "iso-c") {
		t.Error("message for previous identity must not be delivered")
	}
	if !deliverable(conn, "iso-d") {
		t.Error("message for current identity must be delivered")
	}
}
