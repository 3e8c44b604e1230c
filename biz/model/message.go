package model

// 客户端请求类型，固定集合
type ClientMsgType string

const (
	MsgAuthenticate         ClientMsgType = "AUTHENTICATE"
	MsgGetConnectedAccounts ClientMsgType = "GET_CONNECTED_ACCOUNTS"
	MsgGetRecentTrades      ClientMsgType = "GET_RECENT_TRADES"
)

// ClientMessage 客户端到服务端的请求
type ClientMessage struct {
	Type   ClientMsgType `json:"type"`
	UserID string        `json:"user_id"`
	Email  string        `json:"email,omitempty"`
	Limit  int           `json:"limit,omitempty"`
}

// 服务端推送类型
const (
	EvtConnectedAccounts  = "CONNECTED_ACCOUNTS"
	EvtRecentTrades       = "RECENT_TRADES"
	EvtAccountConnected   = "ACCOUNT_CONNECTED"
	EvtAccountDisconnected = "ACCOUNT_DISCONNECTED"
	EvtNewTrade           = "NEW_TRADE"
	EvtTradeCopied        = "TRADE_COPIED"
)

// ServerEvent 服务端到客户端的消息
// 所有事件都带 OwnerID，会话分发前必须比对鉴权身份
type ServerEvent interface {
	EventType() string
	OwnerID() string
}

type ConnectedAccountsEvent struct {
	Type     string             `json:"type"`
	UserID   string             `json:"user_id"`
	Accounts []ConnectedAccount `json:"accounts"`
}

type RecentTradesEvent struct {
	Type   string       `json:"type"`
	UserID string       `json:"user_id"`
	Trades []*LiveTrade `json:"trades"`
}

type AccountConnectedEvent struct {
	Type    string           `json:"type"`
	UserID  string           `json:"user_id"`
	Account ConnectedAccount `json:"account"`
}

type AccountDisconnectedEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
}

type NewTradeEvent struct {
	Type   string     `json:"type"`
	UserID string     `json:"user_id"`
	Trade  *LiveTrade `json:"trade"`
}

type TradeCopiedEvent struct {
	Type           string `json:"type"`
	UserID         string `json:"user_id"`
	TradeID        string `json:"trade_id"`
	SlaveAccountID string `json:"slave_account_id"`
	Status         string `json:"status"`
}

func (e *ConnectedAccountsEvent) EventType() string   { return EvtConnectedAccounts }
func (e *ConnectedAccountsEvent) OwnerID() string     { return e.UserID }
func (e *RecentTradesEvent) EventType() string        { return EvtRecentTrades }
func (e *RecentTradesEvent) OwnerID() string          { return e.UserID }
func (e *AccountConnectedEvent) EventType() string    { return EvtAccountConnected }
func (e *AccountConnectedEvent) OwnerID() string      { return e.UserID }
func (e *AccountDisconnectedEvent) EventType() string { return EvtAccountDisconnected }
func (e *AccountDisconnectedEvent) OwnerID() string   { return e.UserID }
func (e *NewTradeEvent) EventType() string            { return EvtNewTrade }
func (e *NewTradeEvent) OwnerID() string              { return e.UserID }
func (e *TradeCopiedEvent) EventType() string         { return EvtTradeCopied }
func (e *TradeCopiedEvent) OwnerID() string           { return e.UserID }

func NewConnectedAccountsEvent(userID string, accounts []ConnectedAccount) *ConnectedAccountsEvent {
	return &ConnectedAccountsEvent{Type: EvtConnectedAccounts, UserID: userID, Accounts: accounts}
}

func NewRecentTradesEvent(userID string, trades []*LiveTrade) *RecentTradesEvent {
	return &RecentTradesEvent{Type: EvtRecentTrades, UserID: userID, Trades: trades}
}

func NewAccountConnectedEvent(acct ConnectedAccount) *AccountConnectedEvent {
	return &AccountConnectedEvent{Type: EvtAccountConnected, UserID: acct.OwnerUserID, Account: acct}
}

func NewAccountDisconnectedEvent(userID, accountID string) *AccountDisconnectedEvent {
	return &AccountDisconnectedEvent{Type: EvtAccountDisconnected, UserID: userID, AccountID: accountID}
}

func NewTradeEventOf(trade *LiveTrade) *NewTradeEvent {
	return &NewTradeEvent{Type: EvtNewTrade, UserID: trade.OwnerUserID, Trade: trade}
}

func NewTradeCopiedEvent(userID, tradeID, slaveAccountID, status string) *TradeCopiedEvent {
	return &TradeCopiedEvent{Type: EvtTradeCopied, UserID: userID, TradeID: tradeID, SlaveAccountID: slaveAccountID, Status: status}
}
