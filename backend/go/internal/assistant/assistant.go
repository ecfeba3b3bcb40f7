package assistant

import (
	"SynapseCode/backend/go/internal/llm"
	"context"
	"fmt"
	"regexp"
	"strings"
)

// FallbackReply 是生成式文本服务不可用时发到聊天中的回复。
const FallbackReply = "Sorry, I couldn't process that request. Please try again."

// ReplyPrefix 标记 AI 助手发出的聊天消息。
const ReplyPrefix = "🤖 "

const (
	chatPrompt = "you are an ai chat bot, who helps people by giving code and solving their problems. " +
		"your response will directly be shown in the chat, so answer like a chat message. the request is: %s"

	documentPrompt = `Generate documentation for the following code.
Ensure that the documentation is in the form of inline comments to be added at the end of the file.
Don't write a comment for each and every line of code.
Use the appropriate comment style for the provided language.
Don't include the language at the top, just the comments.
Do not include the code or any markdown, just the comments.
Make it as detailed and descriptive as possible.
Code:
%s
`

	fixPrompt = "Fix the syntax errors in the following code:\n\n%s\n\n" +
		"Return only the corrected code without any comments or formatting like markdown. " +
		"If there are any existing comments, don't remove them."
)

var (
	mentionPattern = regexp.MustCompile(`(?:^|\s)@(.+)`)
	fencePattern   = regexp.MustCompile("```[A-Za-z0-9_+-]*\\n?")
)

// Assistant 把三种提示词模板和输出清洗组合在一起。
type Assistant struct {
	gen llm.Generator
}

// New 创建 Assistant。gen 通常是 llm.Guarded，失败时返回 models.ErrUpstreamUnavailable。
func New(gen llm.Generator) *Assistant {
	return &Assistant{gen: gen}
}

// ExtractPrompt 从聊天文本中取出 "@..." 之后的提问。
// 只有位于开头或空白之后的 @ 才算，避免把邮箱地址当成提问。
func ExtractPrompt(text string) (string, bool) {
	m := mentionPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	prompt := strings.TrimSpace(m[1])
	return prompt, prompt != ""
}

// Chat 回答聊天中的提问，返回的文本已带上 ReplyPrefix。
func (a *Assistant) Chat(ctx context.Context, prompt string) (string, error) {
	text, err := a.gen.Generate(ctx, fmt.Sprintf(chatPrompt, prompt))
	if err != nil {
		return "", err
	}
	return ReplyPrefix + strings.TrimSpace(text), nil
}

// Document 为代码生成追加在文件末尾的注释。
func (a *Assistant) Document(ctx context.Context, code, language string) (string, error) {
	text, err := a.gen.Generate(ctx, fmt.Sprintf(documentPrompt, code))
	if err != nil {
		return "", err
	}
	return CleanDocumentation(text, code, language), nil
}

// FixSyntax 让模型修复语法错误，返回纯代码。
func (a *Assistant) FixSyntax(ctx context.Context, code string) (string, error) {
	text, err := a.gen.Generate(ctx, fmt.Sprintf(fixPrompt, code))
	if err != nil {
		return "", err
	}
	return StripFences(text), nil
}

// StripFences 去掉 markdown 代码块标记（包括 ```go 这样的语言标注）。
func StripFences(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}

// CleanDocumentation 去掉模型回显的原始代码、语言名和代码块标记。
func CleanDocumentation(text, code, language string) string {
	text = strings.TrimSpace(text)
	if code != "" {
		text = strings.Replace(text, code, "", 1)
	}
	text = StripFences(text)
	if language != "" {
		text = strings.TrimSpace(strings.TrimPrefix(text, language))
	}
	return text
}
