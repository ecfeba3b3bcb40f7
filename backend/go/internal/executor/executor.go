package executor

import (
	"SynapseCode/backend/go/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// languageIDs 把编辑器中的语言名映射到 Judge0 的 language_id。
var languageIDs = map[string]int{
	"javascript": 63,
	"typescript": 74,
	"python":     71,
	"java":       62,
	"c":          50,
	"cpp":        54,
	"csharp":     51,
	"go":         60,
	"rust":       73,
	"ruby":       72,
	"php":        68,
	"kotlin":     78,
	"swift":      83,
}

// LanguageID 返回语言对应的 Judge0 ID。
func LanguageID(language string) (int, bool) {
	id, ok := languageIDs[strings.ToLower(strings.TrimSpace(language))]
	return id, ok
}

// Doer 是发送 HTTP 请求的最小接口，pkg/http.Client 实现了它。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Judge0 是代码执行服务的客户端。请求以同步方式提交（wait=true），不做重试。
type Judge0 struct {
	http    Doer
	baseURL string
	apiKey  string
	apiHost string
}

// NewJudge0 创建客户端。apiKey 和 apiHost 用于 RapidAPI 网关，自建服务可以留空。
func NewJudge0(doer Doer, baseURL, apiKey, apiHost string) *Judge0 {
	return &Judge0{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		apiHost: apiHost,
	}
}

// Execute 提交代码并等待结果。任何传输错误或非 2xx 响应都归为 models.ErrUpstreamUnavailable。
func (j *Judge0) Execute(ctx context.Context, req models.ExecutionRequest) (*models.ExecutionResult, error) {
	if req.LanguageID <= 0 {
		return nil, fmt.Errorf("language_id 不能为空: %w", models.ErrInvalidInput)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化执行请求失败: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		j.baseURL+"/submissions?base64_encoded=false&wait=true", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建执行请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if j.apiKey != "" {
		httpReq.Header.Set("X-RapidAPI-Key", j.apiKey)
	}
	if j.apiHost != "" {
		httpReq.Header.Set("X-RapidAPI-Host", j.apiHost)
	}

	resp, err := j.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("代码执行服务: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("代码执行服务返回 %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(detail)), models.ErrUpstreamUnavailable)
	}

	var result models.ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析执行结果失败: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	return &result, nil
}
