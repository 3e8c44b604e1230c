package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// HTTPTerminalAuthorizer 终端授权走计费侧校验接口
// 结果短期缓存，免得每笔成交都打一次外部请求
type HTTPTerminalAuthorizer struct {
	verifyURL string
	client    *http.Client
	cache     sync.Map // accountID -> 过期时间 unix 秒
	cacheTTL  time.Duration
}

func NewHTTPTerminalAuthorizer(verifyURL string, timeout time.Duration) *HTTPTerminalAuthorizer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPTerminalAuthorizer{
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
		cacheTTL:  5 * time.Minute,
	}
}

func (a *HTTPTerminalAuthorizer) Authorize(ctx context.Context, accountID, ownerUserID string) error {
	if a.verifyURL == "" {
		return nil
	}
	if v, ok := a.cache.Load(accountID); ok && v.(int64) > time.Now().Unix() {
		return nil
	}

	body, _ := json.Marshal(map[string]string{
		"account_id": accountID,
		"user_id":    ownerUserID,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", a.verifyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		hlog.Errorf("[License] verify request failed, account=%s, err=%v", accountID, err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("license rejected: %s", resp.Status)
	}
	a.cache.Store(accountID, time.Now().Add(a.cacheTTL).Unix())
	return nil
}
