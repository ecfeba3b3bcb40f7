package models

// ExecutionRequest 是提交给代码执行服务的请求。
type ExecutionRequest struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin"`
}

// ExecutionStatus 是执行服务返回的状态描述。
type ExecutionStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// ExecutionResult 是代码执行服务的输出。
type ExecutionResult struct {
	Stdout        string          `json:"stdout"`
	Stderr        string          `json:"stderr"`
	CompileOutput string          `json:"compile_output"`
	Message       string          `json:"message,omitempty"`
	Time          string          `json:"time,omitempty"`
	Memory        int             `json:"memory,omitempty"`
	Status        ExecutionStatus `json:"status"`
}
