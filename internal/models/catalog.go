// Package models holds the curated free-tier model catalog served when the
// upstream provider's catalog cannot be fetched.
package models

type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ContextLength string `json:"contextLength"`
}

// Curated lists free OpenRouter models known to work with this client.
func Curated() []Model {
	return []Model{
		{ID: "deepseek/deepseek-chat-v3.1:free", Name: "DeepSeek V3.1", Provider: "DeepSeek", ContextLength: "164K"},
		{ID: "alibaba/tongyi-deepresearch-30b-a3b:free", Name: "Tongyi DeepResearch 30B", Provider: "Alibaba", ContextLength: "131K"},
		{ID: "z-ai/glm-4.5-air:free", Name: "GLM 4.5 Air", Provider: "Z.AI", ContextLength: "131K"},
		{ID: "nvidia/nemotron-nano-9b-v2:free", Name: "Nemotron Nano 9B V2", Provider: "NVIDIA", ContextLength: "128K"},
		{ID: "qwen/qwen3-coder:free", Name: "Qwen3 Coder 480B", Provider: "Qwen", ContextLength: "262K"},
		{ID: "minimax/minimax-m2:free", Name: "MiniMax M2", Provider: "MiniMax", ContextLength: "131K"},
		{ID: "moonshotai/kimi-k2:free", Name: "Kimi K2", Provider: "MoonshotAI", ContextLength: "33K"},
		{ID: "nvidia/llama-3.1-nemotron-70b-instruct:free", Name: "Llama 3.1 Nemotron 70B", Provider: "NVIDIA", ContextLength: "128K"},
		{ID: "openai/gpt-oss-20b:free", Name: "GPT-OSS-20B", Provider: "OpenAI", ContextLength: "131K"},
		{ID: "meituan/longcat-flash-chat:free", Name: "LongCat Flash Chat", Provider: "Meituan", ContextLength: "131K"},
		{ID: "meta-llama/llama-3.1-8b-instruct:free", Name: "Llama 3.1 8B", Provider: "Meta", ContextLength: "128K"},
		{ID: "meta-llama/llama-3.1-70b-instruct:free", Name: "Llama 3.1 70B", Provider: "Meta", ContextLength: "128K"},
		{ID: "mistralai/mistral-7b-instruct:free", Name: "Mistral 7B Instruct", Provider: "Mistral AI", ContextLength: "32K"},
		{ID: "google/gemma-3n-e2b-it:free", Name: "Gemma 3n 2B", Provider: "Google", ContextLength: "32K"},
	}
}
