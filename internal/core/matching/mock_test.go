package matching

import (
	"context"
	"sync"
)

type MockLLM struct {
	mu            sync.Mutex
	Response      string
	ResponseQueue []string
	ErrQueue      []error
	Block         bool
	Calls         int
	Prompts       []string
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.Prompts = append(m.Prompts, prompt)
	block := m.Block
	var err error
	if len(m.ErrQueue) > 0 {
		err = m.ErrQueue[0]
		m.ErrQueue = m.ErrQueue[1:]
	}
	resp := m.Response
	if err == nil && len(m.ResponseQueue) > 0 {
		resp = m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

type MockEmbedder struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	Err     error
	Calls   map[string]int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[text]++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vectors[text], nil
}

type MockBatchEmbedder struct {
	MockEmbedder
	BatchCalls int
}

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.BatchCalls++
	m.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
